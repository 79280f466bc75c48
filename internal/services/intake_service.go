package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/civichub/backend/internal/models"
)

// IntakeService turns one validated submission into exactly one stored
// IssueReport.
type IntakeService struct {
	stager     *PhotoStager
	photos     PhotoStore
	classifier Classifier
	issues     IssueStore
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

func NewIntakeService(stager *PhotoStager, photos PhotoStore, classifier Classifier, issues IssueStore, logger *slog.Logger) *IntakeService {
	return &IntakeService{
		stager:     stager,
		photos:     photos,
		classifier: classifier,
		issues:     issues,
		validate:   validator.New(),
		logger:     logger,
		now:        time.Now,
	}
}

// Submit validates req, uploads the photo, classifies the issue and persists
// the report. The staged photo copy is released on every return path. If a
// later step fails after upload, the uploaded object is deleted best-effort.
func (s *IntakeService) Submit(ctx context.Context, req models.SubmitIssueRequest) (*models.IssueReport, error) {
	req.Tags = models.NormalizeTags(req.Tags)
	if err := s.validateSubmission(&req); err != nil {
		return nil, err
	}

	staged, err := s.stager.Stage(req.Photo, req.PhotoMimeType)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	defer func() {
		if err := staged.Release(); err != nil {
			s.logger.Error("release staged photo", slog.String("path", staged.Path), slog.Any("error", err))
		}
	}()

	photoURL, err := s.upload(ctx, staged)
	if err != nil {
		return nil, &UploadError{Err: err}
	}

	photo, err := staged.ReadAll()
	if err != nil {
		s.discardUpload(photoURL)
		return nil, &ClassificationError{Err: err}
	}
	class, err := s.classifier.Classify(ctx, photo, req.PhotoMimeType, req.Tags)
	if err != nil {
		s.discardUpload(photoURL)
		return nil, &ClassificationError{Err: err}
	}

	report := &models.IssueReport{
		UserID:        req.UserID,
		Date:          s.now().UTC(),
		SubmittedDate: req.Date,
		Location:      req.Location,
		Lat:           req.Lat,
		Lng:           req.Lng,
		PhotoURL:      photoURL,
		Tags:          req.Tags,
		Department:    class.Department,
		Severity:      class.Severity,
		Progress:      models.InitialProgress,
	}

	id, err := s.issues.Create(ctx, report)
	if err != nil {
		s.discardUpload(photoURL)
		return nil, &PersistenceError{Err: err}
	}
	report.ID = id

	s.logger.Info("issue stored",
		slog.String("issue_id", id),
		slog.String("user", req.UserID),
		slog.String("department", class.Department),
		slog.String("severity", string(class.Severity)))
	return report, nil
}

func (s *IntakeService) validateSubmission(req *models.SubmitIssueRequest) error {
	failed := map[string]bool{}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Kind: ValidationInvalidRequest, Message: err.Error()}
		}
		for _, fe := range verrs {
			failed[fe.Field()] = true
		}
	}

	switch {
	case failed["Lat"] || failed["Lng"]:
		return &ValidationError{Kind: ValidationMissingLocation, Message: "latitude and longitude are required"}
	case len(req.Photo) == 0 || !models.IsAllowedPhotoType(req.PhotoMimeType):
		return &ValidationError{Kind: ValidationInvalidPhotoType, Message: "photo must be PNG, JPEG, WEBP, HEIC or HEIF"}
	case failed["Tags"]:
		return &ValidationError{Kind: ValidationTagCount, Message: "between 1 and 4 tags are required"}
	case failed["UserID"]:
		return &ValidationError{Kind: ValidationInvalidRequest, Message: "user is required"}
	case len(failed) > 0:
		return &ValidationError{Kind: ValidationInvalidRequest, Message: "invalid submission"}
	}
	return nil
}

func (s *IntakeService) upload(ctx context.Context, staged *StagedPhoto) (string, error) {
	f, err := staged.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.photos.Upload(ctx, f, staged.MimeType)
}

// discardUpload runs detached from the request context so a cancelled
// request still cleans up its object.
func (s *IntakeService) discardUpload(photoURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.photos.Delete(ctx, photoURL); err != nil {
		s.logger.Warn("orphaned issue photo", slog.String("url", photoURL), slog.Any("error", err))
	}
}
