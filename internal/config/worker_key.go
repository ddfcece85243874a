package config

type WorkerKeyStruct struct {
	SyncRequestsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	SyncRequestsQueue: "sync_requests_queue",
}
