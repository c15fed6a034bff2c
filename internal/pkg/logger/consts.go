package logger

const (
	ComponentNameServer      = "server"
	ComponentNameHTTPServer  = "http_server"
	ComponentNameCoordinator = "coordinator"
	ComponentNameBuildList   = "build_list"
	ComponentNameEvents      = "events"
	ComponentNameTrigger     = "trigger"
	ComponentNameGitWebhook  = "git_webhook"
	ComponentNameSchedule    = "trigger_schedule"
	ComponentNameState       = "state"
	ComponentNameCLI         = "cli"
)
