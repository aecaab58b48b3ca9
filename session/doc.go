// Package session coordinates a supervised code-interpreter conversation.
//
// A Coordinator owns the conversation history and runs each turn on a
// background worker. The worker streams a response from an Engine, folds
// its fragments into Events, and stops at the approval Gate whenever the
// model asks to run code. Nothing executes until the user approves.
//
// Consumers poll for events rather than receiving callbacks:
//
//	c, err := session.New(engine.NewInterpreter())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	_ = c.Submit("list the files in this directory")
//	for {
//	    for _, ev := range c.PollEvents() {
//	        switch ev.Kind {
//	        case session.EventExecutionRequested:
//	            _ = c.ResolveApproval(session.Approve)
//	        case session.EventTurnComplete:
//	            return
//	        }
//	    }
//	    <-c.Ready()
//	}
//
// Cancel stops the in-flight turn at the next fragment boundary, wakes a
// worker blocked at the gate, and kills any running process group. Every
// turn ends with exactly one EventTurnComplete.
package session
