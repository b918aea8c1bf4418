// Package sysprintv1 defines the sysprint.v1.Comparison gRPC service spoken
// between sysprint and sysprintd over a unix socket.
//
// Requests and responses are Go structs carried on the wire as
// google.protobuf.Struct values, so the service needs no generated code.
package sysprintv1

import (
	"time"

	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/output"
)

// Project summarizes one stored archive.
type Project struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	URL           string           `json:"url,omitempty"`
	Size          int64            `json:"size"`
	Host          string           `json:"host"`
	Platform      string           `json:"platform,omitempty"`
	Created       time.Time        `json:"created"`
	HashAlgorithm string           `json:"hash_algorithm"`
	Mode          string           `json:"mode"`
	Roots         []string         `json:"roots,omitempty"`
	Summary       manifest.Summary `json:"summary"`
	StoredAt      time.Time        `json:"stored_at"`
	LastAccess    time.Time        `json:"last_access"`
}

type UploadRequest struct {
	// Path is read by the daemon, so it must be absolute.
	Path string `json:"path"`
	// ProjectID may be empty to have one generated.
	ProjectID string `json:"project_id,omitempty"`
}

type ListRequest struct{}

type ListResponse struct {
	Projects []*Project `json:"projects"`
}

type GetRequest struct {
	ID string `json:"id"`
}

type CompareRequest struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Hide   []string `json:"hide,omitempty"`
}

type CompareResponse struct {
	Source     output.Side  `json:"source"`
	Target     output.Side  `json:"target"`
	ComparedAt time.Time    `json:"compared_at"`
	Diff       *diff.Result `json:"diff"`
}

// Result returns the comparison ready for an output formatter.
func (r *CompareResponse) Result() *output.Result {
	return &output.Result{
		Source:     r.Source,
		Target:     r.Target,
		Diff:       r.Diff,
		ComparedAt: r.ComparedAt,
		Warnings:   output.Warnings(r.Source, r.Target),
	}
}

type FileDiffRequest struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Path     string `json:"path"`
	Encoding string `json:"encoding,omitempty"`
	Context  int    `json:"context,omitempty"`
}

type ExportRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type ExportResponse struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}

type DeleteRequest struct {
	ID string `json:"id"`
}

type DeleteResponse struct {
	ID string `json:"id"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Healthy       bool      `json:"healthy"`
	PID           int       `json:"pid"`
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Projects      int       `json:"projects"`
	Subscribers   int       `json:"subscribers"`
}

// Uptime returns UptimeSeconds as a duration.
func (r *StatusResponse) Uptime() time.Duration {
	return time.Duration(r.UptimeSeconds) * time.Second
}

type ShutdownRequest struct{}

type ShutdownResponse struct {
	Message string `json:"message"`
}

type WatchRequest struct {
	// Projects limits events to these ids; empty means all.
	Projects []string `json:"projects,omitempty"`
}

// ProjectEvent reports an upload, deletion or reclamation.
type ProjectEvent struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"project_id"`
	Time      time.Time `json:"time"`
}
