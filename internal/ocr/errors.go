package ocr

import "fmt"

// InitError reports that the recognition engine could not be started, for
// example because language data is missing.
type InitError struct {
	Engine   string
	Language string
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("ocr init (%s, %s): %v", e.Engine, e.Language, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// RecognitionError reports an engine failure while recognizing a bitmap.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("ocr recognize: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }
