// Package dispatchapi contains the messages and gRPC service definitions exchanged between the
// dispatch master and its workers. Messages are plain structs carried by the JSON codec in codec.go.
package dispatchapi

// NoMoreJobs is the job id returned by AcquireJob once every job is done.
const NoMoreJobs int64 = -1

type Empty struct{}

type RegisterWorkerRequest struct {
	// Address of the worker's ping service, as reachable from the master.
	Endpoint string `json:"endpoint"`
	// Optional; the master falls back to the peer address of the call.
	Host string `json:"host,omitempty"`
}

type RegisterWorkerResponse struct {
	WorkerId  int64 `json:"workerId"`
	Remaining int64 `json:"remaining"`
}

type AcquireJobRequest struct {
	WorkerId int64 `json:"workerId"`
}

type AcquireJobResponse struct {
	JobId     int64 `json:"jobId"`
	Remaining int64 `json:"remaining"`
}

// Done reports whether the response is the terminal no-more-jobs reply.
func (r *AcquireJobResponse) Done() bool {
	return r.JobId == NoMoreJobs
}

type JobDoneRequest struct {
	JobId int64 `json:"jobId"`
}

type RemainingCountResponse struct {
	Remaining int64 `json:"remaining"`
}

type WorkerInfo struct {
	WorkerId int64  `json:"workerId"`
	Host     string `json:"host"`
}

type WorkerList struct {
	Workers []*WorkerInfo `json:"workers"`
}

type StatusResponse struct {
	Queue      string        `json:"queue"`
	InstanceId string        `json:"instanceId"`
	Total      int64         `json:"total"`
	Remaining  int64         `json:"remaining"`
	Assigned   int64         `json:"assigned"`
	Completion float64       `json:"completion"`
	Workers    []*WorkerInfo `json:"workers"`
}

type PingResponse struct {
	WorkerId int64 `json:"workerId"`
}
