// Package stream consumes the newline-delimited JSON body of a chat response
// and extracts the generated HTML artifact as it arrives.
package stream

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// fenceRe matches the first complete ```html ... ``` pair. Fragments may
// split either fence across reads, so matching always runs over the whole
// accumulated buffer, never just the newest increment.
var fenceRe = regexp.MustCompile("(?s)```html(.*?)```")

// State is the consumer state machine for one conversation turn: the
// accumulated response text and the artifact extracted from it so far.
// The zero value is the start state; a new submission starts from zero.
type State struct {
	Buffer      string
	Artifact    string
	HasArtifact bool
}

// Append folds one fragment into the state and re-scans the whole buffer for
// a complete fence pair. Only the first pair in the buffer counts; once an
// artifact is found it is kept until a later complete pair replaces it, so an
// in-progress stream never blanks the preview.
func (s State) Append(fragment string) State {
	next := State{
		Buffer:      s.Buffer + fragment,
		Artifact:    s.Artifact,
		HasArtifact: s.HasArtifact,
	}

	if artifact, ok := ExtractArtifact(next.Buffer); ok {
		next.Artifact = artifact
		next.HasArtifact = true
	}

	return next
}

// ExtractArtifact returns the text strictly between the first ```html fence
// and its closing fence, trimmed. The second result is false until the
// closing fence has arrived.
func ExtractArtifact(buffer string) (string, bool) {
	m := fenceRe.FindStringSubmatch(buffer)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Record is one NDJSON record of the response body.
type Record struct {
	Text string `json:"text"`
}

// Consume reads the response body record by record, folding each fragment
// into the state. onUpdate, if non-nil, is called after every fragment.
// Decoding is incremental, so multi-byte characters split across reads are
// never corrupted. A body that ends mid-record returns the state built so
// far along with the error; the caller must treat that turn as incomplete.
func Consume(r io.Reader, onUpdate func(State)) (State, error) {
	var state State

	dec := json.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return state, nil
			}
			return state, err
		}

		state = state.Append(rec.Text)
		if onUpdate != nil {
			onUpdate(state)
		}
	}
}
