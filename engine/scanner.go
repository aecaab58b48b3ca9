package engine

import "strings"

const fence = "```"

// fenceScanner splits streamed markdown into prose and fenced code blocks.
// Text is released as soon as it cannot start a fence, so prose streams with
// little delay while partial fence markers are held back across chunk
// boundaries.
type fenceScanner struct {
	inCode  bool
	lang    string
	rawTag  string
	code    strings.Builder
	line    strings.Builder
	midLine bool
}

func (s *fenceScanner) Feed(chunk string) []Fragment {
	var out []Fragment
	for chunk != "" {
		i := strings.IndexByte(chunk, '\n')
		if i < 0 {
			s.partial(chunk, &out)
			break
		}
		s.line.WriteString(chunk[:i+1])
		chunk = chunk[i+1:]
		s.completeLine(&out)
	}
	return out
}

// Flush releases whatever is buffered at end of stream. An unterminated
// block is returned as prose; truncated code is never proposed.
func (s *fenceScanner) Flush() []Fragment {
	var out []Fragment
	switch {
	case s.inCode && strings.TrimSpace(s.line.String()) == fence:
		s.closeBlock(&out)
	case s.inCode:
		out = appendMessage(out, fence+s.rawTag+"\n"+s.code.String()+s.line.String())
	default:
		out = appendMessage(out, s.line.String())
	}
	s.reset()
	return out
}

func (s *fenceScanner) reset() {
	s.inCode = false
	s.lang = ""
	s.rawTag = ""
	s.code.Reset()
	s.line.Reset()
	s.midLine = false
}

func (s *fenceScanner) partial(text string, out *[]Fragment) {
	if s.inCode {
		s.line.WriteString(text)
		return
	}
	if s.midLine {
		*out = appendMessage(*out, text)
		return
	}
	s.line.WriteString(text)
	held := s.line.String()
	if couldOpenFence(held) {
		return
	}
	*out = appendMessage(*out, held)
	s.line.Reset()
	s.midLine = true
}

func (s *fenceScanner) completeLine(out *[]Fragment) {
	line := s.line.String()
	s.line.Reset()

	if s.inCode {
		if strings.TrimSpace(line) == fence {
			s.closeBlock(out)
			return
		}
		s.code.WriteString(line)
		return
	}

	if s.midLine {
		s.midLine = false
		*out = appendMessage(*out, line)
		return
	}

	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, fence) && !(len(trimmed) > 2*len(fence) && strings.HasSuffix(trimmed, fence)) {
		s.inCode = true
		s.rawTag = strings.TrimSpace(trimmed[len(fence):])
		s.lang = NormalizeLanguage(s.rawTag)
		s.code.Reset()
		return
	}
	*out = appendMessage(*out, line)
}

func (s *fenceScanner) closeBlock(out *[]Fragment) {
	code := strings.TrimSuffix(s.code.String(), "\n")
	if s.lang == "" {
		// Untagged fences are illustrations, not proposals.
		*out = appendMessage(*out, fence+"\n"+s.code.String()+fence+"\n")
	} else {
		*out = append(*out, Fragment{Kind: FragmentCode, Language: s.lang, Code: code})
		// Data blocks (json, yaml, output) are shown but never run.
		if Runnable(s.lang) {
			*out = append(*out, Fragment{Kind: FragmentExecuting, Language: s.lang, Code: code})
		}
	}
	s.inCode = false
	s.lang = ""
	s.rawTag = ""
	s.code.Reset()
}

func couldOpenFence(held string) bool {
	t := strings.TrimLeft(held, " \t")
	if len(t) < len(fence) {
		return strings.HasPrefix(fence, t)
	}
	return strings.HasPrefix(t, fence)
}

func appendMessage(out []Fragment, text string) []Fragment {
	if text == "" {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Kind == FragmentMessage {
		out[n-1].Text += text
		return out
	}
	return append(out, Fragment{Kind: FragmentMessage, Text: text})
}
