// Package api defines the wire messages streamed to grade consumers while
// a job runs. Messages are JSON; every one starts with the same header so
// consumers can route on msg_type without decoding the rest.
package api

import "time"

// MsgType is a message type for streaming grading progress
type MsgType string

// Streaming message type constants
const (
	StartJobMsg   MsgType = "job_start"
	FinishTestMsg MsgType = "test_finish"
	FinishJobMsg  MsgType = "job_finish"
)

// Display size constraints for streamed program output
const (
	MaxOutputHeight = 40
	MaxOutputWidth  = 80
)

// Header is the common header for all streaming messages
type Header struct {
	JobUuid string  `json:"job_uuid"`
	MsgType MsgType `json:"msg_type"`
}

// StartJob message sent when grading begins
type StartJob struct {
	Header
	QuestionName string `json:"question_name"`
	Language     string `json:"language"`
	NumTests     int    `json:"num_tests"`
	IsPrecheck   bool   `json:"is_precheck"`
	StartedTime  string `json:"started_time"`
}

// FinishTest message sent as each test result arrives
type FinishTest struct {
	Header
	TestIdx     int     `json:"test_idx"`
	IsCorrect   bool    `json:"is_correct"`
	Mark        float64 `json:"mark"`
	AwardedMark float64 `json:"awarded_mark"`
	Expected    *string `json:"expected"`
	Got         *string `json:"got"`
	Hidden      bool    `json:"hidden"`
}

// FinishJob message sent when grading completes
type FinishJob struct {
	Header
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message"`
	MarkFraction float64 `json:"mark_fraction"`
	ErrorCount   int     `json:"error_count"`
	Aborted      bool    `json:"aborted"`
}

func NewHeader(jobUuid string, msgType MsgType) Header {
	return Header{JobUuid: jobUuid, MsgType: msgType}
}

func NewStartJob(jobUuid, questionName, language string, numTests int, isPrecheck bool) StartJob {
	return StartJob{
		Header:       NewHeader(jobUuid, StartJobMsg),
		QuestionName: questionName,
		Language:     language,
		NumTests:     numTests,
		IsPrecheck:   isPrecheck,
		StartedTime:  time.Now().Format(time.RFC3339),
	}
}

func NewFinishTest(jobUuid string, testIdx int, isCorrect bool, mark, awarded float64, expected, got *string, hidden bool) FinishTest {
	return FinishTest{
		Header:      NewHeader(jobUuid, FinishTestMsg),
		TestIdx:     testIdx,
		IsCorrect:   isCorrect,
		Mark:        mark,
		AwardedMark: awarded,
		Expected:    expected,
		Got:         got,
		Hidden:      hidden,
	}
}

func NewFinishJob(jobUuid, status string, errorMessage *string, markFraction float64, errorCount int, aborted bool) FinishJob {
	return FinishJob{
		Header:       NewHeader(jobUuid, FinishJobMsg),
		Status:       status,
		ErrorMessage: errorMessage,
		MarkFraction: markFraction,
		ErrorCount:   errorCount,
		Aborted:      aborted,
	}
}
