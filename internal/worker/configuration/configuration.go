package configuration

import "time"

type Configuration struct {
	// Address of the master's scheduler api, host:port.
	MasterUrl string `validate:"required"`
	// Address the ping service listens on.
	ListenAddress string `validate:"required"`
	// Host the master uses to reach the ping service. Defaults to the host name.
	AdvertiseHost string
	// How long to wait for the master before giving up on registration.
	ConnectTimeout time.Duration `validate:"required"`
	// How long the report of the last job may take once the worker stops.
	FinishTimeout time.Duration `validate:"required"`
	// Queue name, only used in logs and command templates.
	Queue string
	// Command run for every job. Each argument is a text/template over JobId, WorkerId and Queue.
	Command []string `validate:"required,min=1"`
	// Stop at the first failing job instead of moving on.
	StopOnFailure bool
	// Port serving /metrics and /health. Zero disables it.
	MetricsPort uint16
}
