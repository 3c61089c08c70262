// Package session persists the download manager state between runs.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Version is the document format written by Encode.
const Version = 4

var (
	ErrNoSession          = errors.New("no saved session")
	ErrUnsupportedVersion = errors.New("unsupported session version")
)

// Document is the whole persisted state. Field names are part of the format.
type Document struct {
	Version         int               `json:"version"`
	MaxConcurrent   int               `json:"maxConcurrent"`
	GlobalMaxSpeed  int64             `json:"globalMaxSpeed"`
	PauseOnBattery  bool              `json:"pauseOnBattery"`
	ResumeOnAC      bool              `json:"resumeOnAC"`
	Queues          []Queue           `json:"queues"`
	CategoryFolders map[string]string `json:"categoryFolders"`
	DomainRules     map[string]string `json:"domainRules"`
	Items           []Item            `json:"items"`
}

// Queue is one queue definition with its quota state. LastResetDate is
// an ISO date (2006-01-02).
type Queue struct {
	Name            string `json:"name"`
	MaxConcurrent   int    `json:"maxConcurrent"`
	MaxSpeed        int64  `json:"maxSpeed"`
	ScheduleEnabled bool   `json:"scheduleEnabled"`
	StartMinutes    int    `json:"startMinutes"`
	EndMinutes      int    `json:"endMinutes"`
	QuotaEnabled    bool   `json:"quotaEnabled"`
	QuotaBytes      int64  `json:"quotaBytes"`
	DownloadedToday int64  `json:"downloadedToday"`
	LastResetDate   string `json:"lastResetDate"`
}

// Item is one task. Times are Unix milliseconds, 0 when unset.
type Item struct {
	ID               string   `json:"id,omitempty"`
	URL              string   `json:"url"`
	FilePath         string   `json:"filePath"`
	Segments         int      `json:"segments"`
	QueueName        string   `json:"queueName"`
	Category         string   `json:"category"`
	State            string   `json:"state"`
	TaskMaxSpeed     int64    `json:"taskMaxSpeed"`
	BytesReceived    int64    `json:"bytesReceived"`
	BytesTotal       int64    `json:"bytesTotal"`
	LastSpeed        int64    `json:"lastSpeed"`
	LastEta          int64    `json:"lastEta"`
	PausedAt         int64    `json:"pausedAt"`
	PauseReason      string   `json:"pauseReason"`
	CompletedAt      int64    `json:"completedAt"`
	ETag             string   `json:"etag"`
	LastModified     string   `json:"lastModified"`
	ResumeWarning    string   `json:"resumeWarning"`
	Mirrors          []string `json:"mirrors"`
	MirrorIndex      int      `json:"mirrorIndex"`
	ChecksumAlgo     string   `json:"checksumAlgo"`
	ChecksumExpected string   `json:"checksumExpected"`
	ChecksumActual   string   `json:"checksumActual"`
	ChecksumState    string   `json:"checksumState"`
	VerifyOnComplete bool     `json:"verifyOnComplete"`
	PostOpenFile     bool     `json:"postOpenFile"`
	PostRevealFolder bool     `json:"postRevealFolder"`
	PostExtract      bool     `json:"postExtract"`
	PostScript       string   `json:"postScript"`
	RetryMax         int      `json:"retryMax"`
	RetryDelaySec    int      `json:"retryDelaySec"`
	Headers          []string `json:"headers"`
	CookieHeader     string   `json:"cookieHeader"`
	AuthUser         string   `json:"authUser"`
	AuthPassword     string   `json:"authPassword"`
	Proxy            Proxy    `json:"proxy"`
	LastError        string   `json:"lastError,omitempty"`
	RetryAttempts    int      `json:"retryAttempts,omitempty"`
}

// Proxy is the per-item proxy; an empty Host means none.
type Proxy struct {
	Scheme   string `json:"scheme,omitempty"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Normalize replaces nil collections with empty ones and sorts header lines
// so that equal states encode to equal bytes.
func (d *Document) Normalize() {
	if d.Queues == nil {
		d.Queues = []Queue{}
	}
	if d.CategoryFolders == nil {
		d.CategoryFolders = map[string]string{}
	}
	if d.DomainRules == nil {
		d.DomainRules = map[string]string{}
	}
	if d.Items == nil {
		d.Items = []Item{}
	}
	for i := range d.Items {
		it := &d.Items[i]
		if it.Mirrors == nil {
			it.Mirrors = []string{}
		}
		if it.Headers == nil {
			it.Headers = []string{}
		}
		sort.Strings(it.Headers)
	}
}

// Encode writes d as indented JSON with a trailing newline.
func Encode(d *Document) ([]byte, error) {
	d.Version = Version
	d.Normalize()
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses a document. Documents without a version are accepted as
// the current one; newer versions are refused.
func Decode(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if d.Version > Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, d.Version)
	}
	d.Normalize()
	return &d, nil
}

// Store loads and saves documents.
type Store interface {
	Load() (*Document, error)
	Save(d *Document) error
	Close() error
}
