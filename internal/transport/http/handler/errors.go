package handler

const (
	errInternalServer  = "Internal server error"
	errJobNotFound     = "Job not found"
	errDuplicateJob    = "Job with this id already exists"
	errInvalidSchedule = "Schedule is not a valid six-field cron expression"
	errTokenInvalid    = "Token is invalid or expired"
)
