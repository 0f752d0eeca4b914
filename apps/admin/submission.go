package main

import (
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/student"
)

// submissionFile is the YAML form of a submission. Documents are file paths,
// relative to the submission file.
type submissionFile struct {
	enrollment.Submission `yaml:",inline"`
	Documents             map[student.DocumentKind]string `yaml:"documents,omitempty"`
}

func loadSubmission(path string) (enrollment.Submission, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return enrollment.Submission{}, errors.Wrap(err, "reading submission")
	}

	var f submissionFile
	if err = yaml.Unmarshal(b, &f); err != nil {
		return enrollment.Submission{}, errors.Wrapf(err, "parsing %s", path)
	}

	sub := f.Submission
	if len(f.Documents) == 0 {
		return sub, nil
	}

	dir := filepath.Dir(path)
	sub.Documents = make(map[student.DocumentKind]enrollment.Document, len(f.Documents))
	for kind, docPath := range f.Documents {
		if docPath == "" {
			continue
		}
		if !filepath.IsAbs(docPath) {
			docPath = filepath.Join(dir, docPath)
		}
		content, err := os.ReadFile(docPath)
		if err != nil {
			return enrollment.Submission{}, errors.Wrapf(err, "reading %s document", kind)
		}
		sub.Documents[kind] = enrollment.Document{
			Filename:    filepath.Base(docPath),
			ContentType: mime.TypeByExtension(filepath.Ext(docPath)),
			Content:     content,
		}
	}
	return sub, nil
}

// writeSubmission writes the draft as a submission file for update.
func writeSubmission(w io.Writer, d student.Draft) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(submissionFile{Submission: enrollment.Submission{Mode: enrollment.ModeEdit, Draft: d}}); err != nil {
		return errors.Wrap(err, "writing submission")
	}
	return enc.Close()
}
