package schoolapi

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/student"
)

var (
	_ enrollment.API           = (*Client)(nil)
	_ enrollment.RollSequencer = (*Client)(nil)
	_ enrollment.StudentReader = (*Client)(nil)

	quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
)

func (c *Client) CreateStudentWithCredentials(ctx context.Context, req enrollment.CreateRequest) (enrollment.CreateResult, error) {
	var res enrollment.CreateResult
	err := c.doJSON(ctx, rest.Post, "/students/create-with-credentials", req, &res)
	return res, err
}

// GetStudent returns the student record, including its nested details when the server sends them.
func (c *Client) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var s student.Student
	err := c.doJSON(ctx, rest.Get, "/students/"+url.PathEscape(id), nil, &s)
	return s, err
}

func (c *Client) PartialUpdateStudent(ctx context.Context, id string, patch student.Patch) error {
	return c.doJSON(ctx, rest.Patch, "/students/"+url.PathEscape(id), patch, nil)
}

func (c *Client) UpdateStudentStatus(ctx context.Context, id string, isActive bool) error {
	body := map[string]bool{"is_active": isActive}
	return c.doJSON(ctx, rest.Patch, "/students/"+url.PathEscape(id)+"/status", body, nil)
}

// UploadDocument posts the document as the "file" part of a multipart form.
func (c *Client) UploadDocument(ctx context.Context, studentID string, kind student.DocumentKind, doc enrollment.Document) error {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)

	filename := filepath.Base(doc.Filename)
	if filename == "." || filename == "/" {
		filename = string(kind)
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(filename)+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return errors.Wrap(err, "creating file part")
	}
	if _, err = part.Write(doc.Content); err != nil {
		return errors.Wrap(err, "writing file part")
	}
	if err = w.Close(); err != nil {
		return errors.Wrap(err, "closing multipart body")
	}

	req := c.newRequest(rest.Post, "/students/"+url.PathEscape(studentID)+"/documents/"+string(kind))
	req.Headers["Content-Type"] = w.FormDataContentType()
	req.Body = body.Bytes()
	return c.do(ctx, req, nil)
}

func (c *Client) CreateAdmissionFee(ctx context.Context, payload fee.Payload) error {
	return c.doJSON(ctx, rest.Post, "/fees/admission", payload, nil)
}

// LookupUserByEmail returns nil when no account has the e-mail.
func (c *Client) LookupUserByEmail(ctx context.Context, email string) (*enrollment.Account, error) {
	req := c.newRequest(rest.Get, "/users/lookup")
	req.QueryParams = map[string]string{"email": email}

	acct := new(enrollment.Account)
	if err := c.do(ctx, req, acct); err != nil {
		if core.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if acct.ID == "" && acct.Email == "" {
		return nil, nil
	}
	return acct, nil
}

func (c *Client) ClassSequence(ctx context.Context, classID string) (student.ClassSequence, error) {
	var seq student.ClassSequence
	err := c.doJSON(ctx, rest.Get, "/classes/"+url.PathEscape(classID)+"/roll-sequence", nil, &seq)
	if seq.ClassID == "" {
		seq.ClassID = classID
	}
	return seq, err
}

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
