package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(SweepSessionsTask.TaskID(), SweepSessionsTask.HandleExecution)
	RegisterHandler(PurgeSessionsTask.TaskID(), PurgeSessionsTask.HandleExecution)
	RegisterHandler(RepollPaymentsTask.TaskID(), RepollPaymentsTask.HandleExecution)
}
