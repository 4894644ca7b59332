package agent

import "strings"

// maxTagLen bounds how long the filter will wait for a closing brace before
// deciding the pending text is prose.
const maxTagLen = 256

// DeltaFilter removes directive tags from a stream of text deltas so they
// never reach the client, using the same grammar as ScanReply. Prose flows
// through with minimal buffering: text is withheld only from an unresolved
// '{' until it either closes as a tag or can no longer be one.
type DeltaFilter struct {
	emit    func(string) error
	pending string
}

func NewDeltaFilter(emit func(string) error) *DeltaFilter {
	return &DeltaFilter{emit: emit}
}

// Write feeds one delta through the filter.
func (f *DeltaFilter) Write(delta string) error {
	f.pending += delta
	return f.drain(false)
}

// Flush releases any withheld text. Call once after the stream ends.
func (f *DeltaFilter) Flush() error {
	return f.drain(true)
}

func (f *DeltaFilter) drain(final bool) error {
	for {
		open := strings.IndexByte(f.pending, '{')
		if open < 0 {
			if f.pending != "" {
				if err := f.emit(f.pending); err != nil {
					return err
				}
				f.pending = ""
			}
			return nil
		}
		if open > 0 {
			if err := f.emit(f.pending[:open]); err != nil {
				return err
			}
			f.pending = f.pending[open:]
		}

		end := strings.IndexByte(f.pending, '}')
		if end < 0 {
			inner := f.pending[1:]
			if strings.ContainsAny(inner, "{\n") || len(inner) > maxTagLen || final {
				// This brace can no longer open a tag.
				if err := f.emit("{"); err != nil {
					return err
				}
				f.pending = f.pending[1:]
				continue
			}
			return nil
		}

		if !validTagBody(f.pending[1:end]) {
			if err := f.emit("{"); err != nil {
				return err
			}
			f.pending = f.pending[1:]
			continue
		}
		f.pending = f.pending[end+1:]
	}
}
