package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
)

// problemFile is either a single class request, a list of classes under
// "classes", or a request plus candidate "lessons" for validation. JSON input
// parses as YAML.
type problemFile struct {
	timetable.Request `yaml:",inline"`
	Classes           []timetable.Request    `yaml:"classes,omitempty"`
	Lessons           []timetable.Assignment `yaml:"lessons,omitempty"`
}

func (f problemFile) requests() []timetable.Request {
	if len(f.Classes) > 0 {
		return f.Classes
	}
	return []timetable.Request{f.Request}
}

func readProblem(path string, stdin io.Reader) (*problemFile, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read problem file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var file problemFile
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("problem file %s is empty", path)
		}
		return nil, fmt.Errorf("decode problem file: %w", err)
	}
	if len(file.Classes) > 0 && file.Request.ClassName != "" {
		return nil, fmt.Errorf("problem file mixes a top-level class with a classes list")
	}
	return &file, nil
}
