// ABOUTME: files.upload and the media upload step shared with the send tools
// ABOUTME: Resolves an inline or remote source, names it and uploads it to the chat application

package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/inline-mcp/internal/auth"
	"github.com/2389/inline-mcp/internal/inline"
	"github.com/2389/inline-mcp/internal/upload"
)

func (ts *Toolset) filesUpload() *Tool {
	return &Tool{
		Name:          "files.upload",
		Title:         "Upload file",
		Description:   "Upload a file from base64 data or a public https URL. Returns ids usable as message media.",
		Schema:        object(nil, withMediaSource(map[string]*jsonschema.Schema{})),
		RequiredScope: auth.ScopeMessagesWrite,
		Tier:          TierMutating,
		OpenWorld:     true,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			_, view, err := ts.uploadMedia(ctx, call.Client, call.Args)
			if err != nil {
				return nil, err
			}
			return view, nil
		},
	}
}

// uploadMedia runs the upload pipeline for the source described by a.
func (ts *Toolset) uploadMedia(ctx context.Context, client inline.Client, a Args) (*inline.UploadResult, uploadView, error) {
	if ts.Uploads == nil {
		return nil, uploadView{}, invalidf("uploads are not configured")
	}
	src, err := ts.Uploads.Resolve(ctx, upload.Request{Base64: a.String("base64"), URL: a.String("url")})
	if err != nil {
		return nil, uploadView{}, err
	}

	kind := a.String("kind")
	if kind == "" {
		kind = upload.KindAuto
	}
	att := upload.Describe(src, a.String("fileName"), a.String("contentType"), kind, a.String("extension"))

	params := inline.UploadParams{
		Type:        att.Kind,
		FileName:    att.FileName,
		ContentType: att.ContentType,
		Data:        src.Bytes,
	}
	if att.Kind == upload.KindVideo {
		params.Width = a.Int("width", 0)
		params.Height = a.Int("height", 0)
		params.Duration = a.Int("duration", 0)
	}

	res, err := client.UploadFile(ctx, params)
	if err != nil {
		return nil, uploadView{}, err
	}
	return res, uploadView{
		FileUniqueID: res.FileUniqueID,
		Kind:         att.Kind,
		FileName:     att.FileName,
		ContentType:  att.ContentType,
		Size:         len(src.Bytes),
		PhotoID:      formatOptionalID(res.PhotoID),
		VideoID:      formatOptionalID(res.VideoID),
		DocumentID:   formatOptionalID(res.DocumentID),
		Source:       string(src.Kind),
		SourceRef:    src.RedactedSourceRef,
	}, nil
}
