package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// в ошибках: имена полей как в JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("mime", func(fl validator.FieldLevel) bool {
		return mimetype.Lookup(normalizeMIME(fl.Field().String())) != nil
	})
	return v
}

type GetOrCreateChatInput struct {
	ClinicID string `json:"clinicId" validate:"required,max=128"`
	DoctorID string `json:"doctorId" validate:"required,max=128"`
}

type SendMessageInput struct {
	ChatID     string           `json:"chatId" validate:"required,max=128"`
	Content    string           `json:"content"`
	SenderID   string           `json:"senderId" validate:"required,max=128"`
	SenderType string           `json:"senderType" validate:"required,oneof=clinic doctor"`
	Attachment *AttachmentInput `json:"attachment,omitempty"`
}

// AttachmentInput: метаданные уже загруженного файла.
type AttachmentInput struct {
	URL         string `json:"url" validate:"required,http_url,max=2048"`
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required,mime"`
}

func (a *AttachmentInput) toDomain() *domain.Attachment {
	if a == nil {
		return nil
	}
	return &domain.Attachment{
		URL:         a.URL,
		FileName:    a.FileName,
		ContentType: normalizeMIME(a.ContentType),
	}
}

// normalizeMIME: "Image/PNG; charset=x" → "image/png".
func normalizeMIME(s string) string {
	s, _, _ = strings.Cut(s, ";")
	return strings.ToLower(strings.TrimSpace(s))
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.Invalidf("invalid request: %v", err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return domain.Invalidf("%s is required", fe.Field())
	case "oneof":
		return domain.Invalidf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "max":
		return domain.Invalidf("%s is longer than %s", fe.Field(), fe.Param())
	case "mime":
		return domain.Invalidf("%s %q is not a known MIME type", fe.Field(), fe.Value())
	default:
		return domain.Invalidf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
