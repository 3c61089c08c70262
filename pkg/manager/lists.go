package manager

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/raaddl/raad/pkg/transfer"
)

// List formats understood by ExportList.
const (
	FormatText = "txt"
	FormatJSON = "json"
)

// FormatFor picks the export format from a file name: ".txt" is plain
// text, anything else JSON.
func FormatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return FormatText
	}
	return FormatJSON
}

type importItem struct {
	URL         string `json:"url"`
	FilePath    string `json:"filePath"`
	QueueName   string `json:"queueName"`
	Category    string `json:"category"`
	StartPaused bool   `json:"startPaused"`
}

// UnmarshalJSON accepts a bare URL string or an object; other values are
// left empty and skipped.
func (it *importItem) UnmarshalJSON(data []byte) error {
	type plain importItem
	switch {
	case len(data) == 0:
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &it.URL)
	case data[0] == '{':
		return json.Unmarshal(data, (*plain)(it))
	}
	return nil
}

// ImportList adds every entry of a JSON or text list and returns how many
// were added. JSON is an array of URLs or objects, or an object holding
// such an array under "items". Text has one entry per line,
// "url|path|queue|category" or whitespace separated; blank lines and lines
// starting with # or // are skipped. Bad entries are reported together.
func (m *Manager) ImportList(r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	items, isJSON, err := parseJSONList(raw)
	if err != nil {
		return 0, err
	}
	if !isJSON {
		items = parseTextList(raw)
	}
	var (
		added int
		errs  []error
	)
	for i, it := range items {
		if strings.TrimSpace(it.URL) == "" {
			continue
		}
		_, err := m.AddDownload(AddRequest{
			URL:         it.URL,
			Path:        it.FilePath,
			Queue:       it.QueueName,
			Category:    it.Category,
			Options:     transfer.DefaultOptions(),
			StartPaused: it.StartPaused,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i+1, it.URL, err))
			continue
		}
		added++
	}
	m.log.Info("imported %d downloads", added)
	return added, errors.Join(errs...)
}

func parseJSONList(raw []byte) (items []importItem, ok bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '[' && trimmed[0] != '{') || !json.Valid(trimmed) {
		return nil, false, nil
	}
	if trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &items)
		return items, true, err
	}
	var wrapper struct {
		Items []importItem `json:"items"`
	}
	err = json.Unmarshal(trimmed, &wrapper)
	return wrapper.Items, true, err
}

func parseTextList(raw []byte) []importItem {
	var items []importItem
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		var parts []string
		if strings.Contains(line, "|") {
			parts = strings.Split(line, "|")
		} else {
			parts = strings.Fields(line)
		}
		field := func(i int) string {
			if i < len(parts) {
				return strings.TrimSpace(parts[i])
			}
			return ""
		}
		items = append(items, importItem{
			URL:       field(0),
			FilePath:  field(1),
			QueueName: field(2),
			Category:  field(3),
		})
	}
	return items
}

type exportItem struct {
	URL           string `json:"url"`
	FilePath      string `json:"filePath"`
	QueueName     string `json:"queueName"`
	Category      string `json:"category"`
	State         string `json:"state"`
	BytesReceived int64  `json:"bytesReceived"`
	BytesTotal    int64  `json:"bytesTotal"`
}

// ExportList writes every task in insertion order, as URLs one per line
// for FormatText or as a versioned JSON document otherwise.
func (m *Manager) ExportList(w io.Writer, format string) error {
	infos := m.Tasks()
	switch format {
	case FormatText:
		bw := bufio.NewWriter(w)
		for _, info := range infos {
			fmt.Fprintln(bw, info.URL)
		}
		return bw.Flush()
	case FormatJSON:
		doc := struct {
			Version int          `json:"version"`
			Items   []exportItem `json:"items"`
		}{Version: 1, Items: make([]exportItem, 0, len(infos))}
		for _, info := range infos {
			doc.Items = append(doc.Items, exportItem{
				URL:           info.URL,
				FilePath:      info.Path,
				QueueName:     info.Queue,
				Category:      info.Category,
				State:         string(info.Status),
				BytesReceived: info.Received,
				BytesTotal:    max(info.Total, 0),
			})
		}
		data, err := json.MarshalIndent(doc, "", "    ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}
	return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// TestURL sends a HEAD request the way a task would and reports status,
// size and range support. It does not touch any task.
func (m *Manager) TestURL(ctx context.Context, rawURL string) (*transfer.ProbeResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := transfer.ValidateURL(rawURL); err != nil {
		return nil, err
	}
	client, err := m.newClient(nil)
	if err != nil {
		return nil, err
	}
	defer client.CloseIdleConnections()
	return transfer.Probe(ctx, client, rawURL, nil, transfer.DefaultUserAgent)
}
