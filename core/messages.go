package delivery

// SentenceKind marks the position of a message or chunk within one
// utterance. Every utterance carries exactly one first and one last marker
// with any number of middles in between.
type SentenceKind string

const (
	SentenceFirst  SentenceKind = "first"
	SentenceMiddle SentenceKind = "middle"
	SentenceLast   SentenceKind = "last"
)

// ContentKind discriminates the payload of an incoming text-queue message.
type ContentKind string

const (
	// ContentText carries text to synthesize.
	ContentText ContentKind = "text"
	// ContentFile points at a pre-recorded audio file played after the
	// utterance's synthesized speech.
	ContentFile ContentKind = "file"
	// ContentAction carries no payload; it only moves the utterance state
	// machine (a bare first or last marker).
	ContentAction ContentKind = "action"
)

// TextMessage is one unit of the ordered text stream feeding the pipeline.
// Producers enqueue it; the dispatcher consumes it exactly once, in FIFO
// order per utterance.
type TextMessage struct {
	UtteranceID string
	Sentence    SentenceKind
	Content     ContentKind
	Text        string
	FilePath    string
}

// AudioChunk is one ordered batch of encoded frames on its way to the send
// function. Chunks never reorder relative to each other.
type AudioChunk struct {
	Sentence SentenceKind
	Frames   [][]byte
	// Text annotates the chunk with the sentence it belongs to, for
	// transcripts and usage reporting.
	Text string
}
