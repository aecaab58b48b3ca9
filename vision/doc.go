// Package vision adds screenshots to outgoing requests.
//
// An Augmenter is a session.RequestTransform: while enabled, it attaches the
// current screen, downscaled and JPEG-encoded, to a copy of the latest user
// message. Stored history never sees the image. When a provider rejects
// image input the Augmenter disables itself for the rest of the session.
package vision
