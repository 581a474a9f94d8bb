package ledger

// Key layout inside the store:
//
//	job_history                              set of every class name recorded
//	job_history.<class>.running_jobs         list of running run ids, newest first
//	job_history.<class>.finished_jobs        list of finished run ids, newest first
//	job_history.<class>.total_running_jobs   runs ever started
//	job_history.<class>.total_finished_jobs  runs ever finished
//	job_history.<class>.max_jobs             concurrency high-water mark
//	job_history.<class>.total_failed         runs ever failed or canceled
//	job_history.<class>.<job_id>             hash: start_time, end_time, args, error
//	job_history..linear_jobs                 every run of every class, newest first
//	job_history..total_linear_jobs           runs ever added to the linear list
//	job_history..linear_job_classes          hash: job_id -> class
const historyKey = "job_history"

// ListKind names one of the history lists.
type ListKind string

const (
	Running  ListKind = "running"
	Finished ListKind = "finished"
	Linear   ListKind = "linear"
)

// Record hash fields.
const (
	fieldStartTime = "start_time"
	fieldEndTime   = "end_time"
	fieldArgs      = "args"
	fieldError     = "error"
)

func baseKey(className string) string {
	return historyKey + "." + className
}

func listKey(scope string, kind ListKind) string {
	return baseKey(scope) + "." + string(kind) + "_jobs"
}

func listTotalKey(scope string, kind ListKind) string {
	return baseKey(scope) + ".total_" + string(kind) + "_jobs"
}

func listClassesKey(scope string, kind ListKind) string {
	return baseKey(scope) + "." + string(kind) + "_job_classes"
}

func maxJobsKey(className string) string {
	return baseKey(className) + ".max_jobs"
}

func totalFailedKey(className string) string {
	return baseKey(className) + ".total_failed"
}

func jobKey(className, jobID string) string {
	return baseKey(className) + "." + jobID
}

// supportKeys are the non-record keys that may live under a class base key.
func supportKeys(className string) []string {
	var keys []string
	for _, kind := range []ListKind{Running, Finished, Linear} {
		keys = append(keys,
			listKey(className, kind),
			listTotalKey(className, kind),
			listClassesKey(className, kind))
	}
	return append(keys, maxJobsKey(className), totalFailedKey(className))
}
