// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/share"
)

// OptionTableVersion is bumped whenever options are added to the table.
// Existing identifiers never change meaning.
const OptionTableVersion = 1

// Option identifies a per-transfer setting.
type Option int

const (
	OptURL Option = iota + 1
	OptMethod
	OptHeaders
	OptPostFields
	OptUpload
	OptReadFrom
	OptInFileSize
	OptTimeout
	OptConnectTimeout
	OptFollowLocation
	OptMaxRedirs
	OptUserAgent
	OptSSLVerifyPeer
	OptReturnTransfer
	OptFailOnError
	OptWriteTo
	OptShare
	OptHTTPVersion
	OptBufferSize
	OptNoBody
	OptPrivate
)

// HTTP versions accepted by OptHTTPVersion.
const (
	HTTPVersionNone int64 = iota
	HTTPVersion1_1
	HTTPVersion2
)

const (
	defaultMaxRedirs = 30
	maxBufferSize    = 10 * 1024 * 1024
)

// OptionInfo is one row of the option table.
type OptionInfo struct {
	Option  Option
	Name    string
	Kind    ValueKind
	Feature Feature // required capability, 0 when none
	Since   int     // table version that introduced the option
	Doc     string
}

var optionTable = []OptionInfo{
	{OptURL, "url", KindString, 0, 1, "URL to transfer"},
	{OptMethod, "method", KindString, 0, 1, "custom request method"},
	{OptHeaders, "headers", KindStrings, 0, 1, `request headers as "Name: value"`},
	{OptPostFields, "post_fields", KindString, 0, 1, "request body, sent with POST unless a method is set"},
	{OptUpload, "upload", KindBool, FeatureUpload, 1, "send the read_from source as the request body"},
	{OptReadFrom, "read_from", KindReader, FeatureUpload, 1, "upload source"},
	{OptInFileSize, "in_file_size", KindInt, FeatureUpload, 1, "upload size in bytes, -1 when unknown"},
	{OptTimeout, "timeout", KindDuration, 0, 1, "limit for the whole transfer, 0 for none"},
	{OptConnectTimeout, "connect_timeout", KindDuration, 0, 1, "limit for the connection phase"},
	{OptFollowLocation, "follow_location", KindBool, 0, 1, "follow redirects"},
	{OptMaxRedirs, "max_redirs", KindInt, 0, 1, "redirect limit, -1 for unlimited"},
	{OptUserAgent, "user_agent", KindString, 0, 1, "User-Agent header"},
	{OptSSLVerifyPeer, "ssl_verify_peer", KindBool, 0, 1, "verify the server certificate"},
	{OptReturnTransfer, "return_transfer", KindBool, 0, 1, "capture the response body"},
	{OptFailOnError, "fail_on_error", KindBool, 0, 1, "fail the transfer on a response status >= 400"},
	{OptWriteTo, "write_to", KindWriter, 0, 1, "destination for the response body"},
	{OptShare, "share", KindShare, FeatureShare, 1, "shared cache resource"},
	{OptHTTPVersion, "http_version", KindInt, 0, 1, "0 any, 1 HTTP/1.1, 2 HTTP/2"},
	{OptBufferSize, "buffer_size", KindInt, 0, 1, "receive chunk size in bytes"},
	{OptNoBody, "no_body", KindBool, 0, 1, "request headers only"},
	{OptPrivate, "private", KindString, 0, 1, "caller data kept with the handle"},
}

var optionIndex = func() map[Option]int {
	idx := make(map[Option]int, len(optionTable))
	for i, row := range optionTable {
		idx[row.Option] = i
	}
	return idx
}()

// Options returns a copy of the option table.
func Options() []OptionInfo {
	out := make([]OptionInfo, len(optionTable))
	copy(out, optionTable)
	return out
}

// LookupOption finds an option by its table name.
func LookupOption(name string) (OptionInfo, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, row := range optionTable {
		if row.Name == name {
			return row, true
		}
	}
	return OptionInfo{}, false
}

func (o Option) info() (OptionInfo, bool) {
	i, ok := optionIndex[o]
	if !ok {
		return OptionInfo{}, false
	}
	return optionTable[i], true
}

func (o Option) String() string {
	if row, ok := o.info(); ok {
		return row.Name
	}
	return fmt.Sprintf("option(%d)", int(o))
}

// ValueKind tags the content of a Value.
type ValueKind int

const (
	KindString ValueKind = iota + 1
	KindInt
	KindBool
	KindDuration
	KindStrings
	KindShare
	KindReader
	KindWriter
)

var kindNames = map[ValueKind]string{
	KindString:   "string",
	KindInt:      "int",
	KindBool:     "bool",
	KindDuration: "duration",
	KindStrings:  "strings",
	KindShare:    "share",
	KindReader:   "reader",
	KindWriter:   "writer",
}

func (k ValueKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is an option value. Its kind is fixed by the constructor.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	b    bool
	d    time.Duration
	ss   []string
	sh   *share.Share
	r    io.Reader
	w    io.Writer
}

func String(s string) Value          { return Value{kind: KindString, s: s} }
func Int(n int64) Value              { return Value{kind: KindInt, i: n} }
func Bool(b bool) Value              { return Value{kind: KindBool, b: b} }
func Duration(d time.Duration) Value { return Value{kind: KindDuration, d: d} }
func ShareRef(s *share.Share) Value  { return Value{kind: KindShare, sh: s} }
func Reader(r io.Reader) Value       { return Value{kind: KindReader, r: r} }
func Writer(w io.Writer) Value       { return Value{kind: KindWriter, w: w} }

func Strings(ss ...string) Value {
	return Value{kind: KindStrings, ss: append([]string(nil), ss...)}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return fmt.Sprint(v.i)
	case KindBool:
		return fmt.Sprint(v.b)
	case KindDuration:
		return v.d.String()
	case KindStrings:
		return strings.Join(v.ss, ", ")
	case KindShare, KindReader, KindWriter:
		return "<" + v.kind.String() + ">"
	}
	return "<invalid>"
}

// Setting pairs an option with its value for Handle.SetOpts.
type Setting struct {
	Option Option
	Value  Value
}

func Set(opt Option, v Value) Setting { return Setting{Option: opt, Value: v} }

// handleOptions is the resolved configuration of a handle.
type handleOptions struct {
	url            string
	method         string
	headers        []string
	postFields     []byte
	upload         bool
	readFrom       io.Reader
	inFileSize     int64
	timeout        time.Duration
	connectTimeout time.Duration
	followLocation bool
	maxRedirs      int
	userAgent      string
	verifyPeer     bool
	returnTransfer bool
	failOnError    bool
	writeTo        io.Writer
	share          *share.Share
	httpVersion    int64
	bufferSize     int
	noBody         bool
	private        string
}

func defaultOptions(rt *Runtime) handleOptions {
	return handleOptions{
		inFileSize:     -1,
		timeout:        rt.defaults.Timeout,
		connectTimeout: rt.defaults.ConnectTimeout,
		maxRedirs:      defaultMaxRedirs,
		userAgent:      rt.defaults.UserAgent,
		verifyPeer:     rt.defaults.VerifyPeer,
	}
}

func (o handleOptions) clone() handleOptions {
	c := o
	c.headers = append([]string(nil), o.headers...)
	if o.postFields != nil {
		c.postFields = append([]byte(nil), o.postFields...)
	}
	return c
}
