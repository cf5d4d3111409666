// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package transfer

// Manifest describes a batch of transfers. Defaults are merged under every
// entry of Transfers before it is decoded into an Entry.
type Manifest struct {
	Workers             int                      `json:"workers,omitempty"             yaml:"workers,omitempty"`
	MaxTotalConnections int                      `json:"maxTotalConnections,omitempty" yaml:"maxTotalConnections,omitempty"`
	MaxHostConnections  int                      `json:"maxHostConnections,omitempty"  yaml:"maxHostConnections,omitempty"`
	Share               []string                 `json:"share,omitempty"               yaml:"share,omitempty"`
	Defaults            map[string]interface{}   `json:"defaults,omitempty"            yaml:"defaults,omitempty"`
	Transfers           []map[string]interface{} `json:"transfers"                     yaml:"transfers"`
}

// Entry is one transfer of a manifest.
type Entry struct {
	ID          string   `json:"id,omitempty"`
	URL         string   `json:"url"`
	Method      string   `json:"method,omitempty"`
	Headers     []string `json:"headers,omitempty"`
	Body        string   `json:"body,omitempty"`
	Destination string   `json:"destination,omitempty"` // local file for the response body
	Source      string   `json:"source,omitempty"`      // local file to upload
	Timeout     string   `json:"timeout,omitempty"`
	// Pointers distinguish "unset" from false/0 so that defaults apply.
	FollowRedirects *bool `json:"followRedirects,omitempty"`
	MaxRedirects    *int  `json:"maxRedirects,omitempty"`
	FailOnError     *bool `json:"failOnError,omitempty"`
	VerifyPeer      *bool `json:"verifyPeer,omitempty"`
	HTTPVersion     int   `json:"httpVersion,omitempty"`
}

// Result is the outcome of one entry.
type Result struct {
	ID          string `json:"id"                    yaml:"id"`
	URL         string `json:"url"                   yaml:"url"`
	Code        string `json:"code"                  yaml:"code"`
	Message     string `json:"message,omitempty"     yaml:"message,omitempty"`
	Status      int    `json:"status,omitempty"      yaml:"status,omitempty"`
	Downloaded  int64  `json:"downloaded"            yaml:"downloaded"`
	Uploaded    int64  `json:"uploaded,omitempty"    yaml:"uploaded,omitempty"`
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
	Duration    string `json:"duration"              yaml:"duration"`
}

// OK reports whether the transfer succeeded.
func (r Result) OK() bool { return r.Code == "OK" }

type DownloadRequest struct {
	URLs        []string
	Destination string
}

type DownloadInfo struct {
	Filename string `json:"filename" yaml:"filename"`
	Size     int64  `json:"size"     yaml:"size"`
	Path     string `json:"path"     yaml:"path"`
}

// -------- Upload --------

type UploadRequest struct {
	Input  string // file o directory locale (obbligatorio)
	Target string // s3://bucket/prefix/ oppure http(s) URL
}

type UploadResult struct {
	Files   []map[string]interface{} // path, name, content_type, last_modified, size
	Results []Result
}
