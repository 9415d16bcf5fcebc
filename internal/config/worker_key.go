package config

type WorkerKeyStruct struct {
	PersistAnswersQueue string
	PersistResultsQueue string
}

// DeadLetter returns the list holding items from queue that kept failing.
func (w *WorkerKeyStruct) DeadLetter(queue string) string {
	return queue + ":dead"
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue: "persist_answers_queue",
	PersistResultsQueue: "persist_results_queue",
}
