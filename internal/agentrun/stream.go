package agentrun

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// streamRecord is one line of the agent's --output-format stream-json
// output. Only the fields the pipeline cares about are modeled; unknown
// types and unknown fields are ignored.
type streamRecord struct {
	Type    string `json:"type"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

type parsedStream struct {
	assistantChunks []string
	errorRecords    []string
	parsingErrors   []string
}

func (p *parsedStream) assistantText() string {
	return strings.Join(p.assistantChunks, "\n")
}

// parseStream reads newline-delimited JSON records from r. A line that
// fails to parse is counted and logged but does not abort the scan,
// matching the original service's tolerant parsing of malformed lines.
func parseStream(r io.Reader) *parsedStream {
	p := &parsedStream{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec streamRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			p.parsingErrors = append(p.parsingErrors, err.Error())
			slog.Debug("agentrun: malformed stream-json line", "error", err)
			continue
		}

		switch rec.Type {
		case "assistant":
			for _, block := range rec.Message.Content {
				if block.Type == "text" && block.Text != "" {
					p.assistantChunks = append(p.assistantChunks, block.Text)
				}
			}
		case "error":
			msg := rec.Error
			if msg == "" {
				msg = "agent reported an error record"
			}
			p.errorRecords = append(p.errorRecords, msg)
			slog.Warn("agentrun: agent emitted error record", "message", msg)
		case "result":
			// Terminal summary record; assistant text already captured.
		}
	}

	return p
}
