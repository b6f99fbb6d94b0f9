package provider

import (
	"bufio"
	"io"
	"strings"
)

// parseSSEStream scans reader for Server-Sent Events, accumulating
// "event:"/"data:" lines until a blank line terminates one event, then
// invokes handler with that event's type and joined data. Multi-line data
// fields are joined with "\n", matching the SSE specification. Returns when
// the reader is exhausted or handler returns an error.
//
// This hand-rolled parser (rather than a provider SDK's typed streaming
// iterator) is what lets the provider adapters observe every
// content_block_start/delta/stop transition directly, which the normalized
// event translation below depends on.
func parseSSEStream(reader io.Reader, handler func(eventType, data string) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			et := eventType
			d := strings.Join(dataLines, "\n")
			eventType, dataLines = "", nil
			if d == "" {
				continue
			}
			if err := handler(et, d); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return scanner.Err()
}
