package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"
)

// buildSubmission turns a results document into a Submit request. A missing
// submission_id gets a fresh v4 UUID and a missing timestamp gets now; a missing
// total_score or max_score is summed from the tasks. Retrying the same document
// after it was assigned an id requires the printed id to be written back.
func buildSubmission(raw []byte, now time.Time) (*structpb.Struct, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse results: expected a JSON object")
	}

	if s, _ := doc["submission_id"].(string); s == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		doc["submission_id"] = id.String()
	}
	if s, _ := doc["timestamp"].(string); s == "" {
		doc["timestamp"] = now.UTC().Format(time.RFC3339Nano)
	}

	tasks, _ := doc["tasks"].([]any)
	fillSum(doc, "total_score", tasks, "score")
	fillSum(doc, "max_score", tasks, "max_score")

	return structpb.NewStruct(doc)
}

// fillSum sets doc[key] to the sum of tasks[*][taskKey] when key is absent and
// every task carries a number there.
func fillSum(doc map[string]any, key string, tasks []any, taskKey string) {
	if _, ok := doc[key]; ok || len(tasks) == 0 {
		return
	}
	var sum float64
	for _, t := range tasks {
		m, _ := t.(map[string]any)
		v, ok := m[taskKey].(float64)
		if !ok {
			return
		}
		sum += v
	}
	doc[key] = sum
}
