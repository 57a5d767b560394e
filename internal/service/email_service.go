package service

import (
	"context"
	"fmt"
	"html"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"coursegate/internal/config"
	"coursegate/internal/logger"
	"coursegate/internal/models"
)

// sesSender is the part of the SES v2 client the email service uses
type sesSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService sends buyer emails via Amazon SES. It is a no-op when no
// sender address is configured.
type EmailService struct {
	client     sesSender
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	log        *logger.Logger
}

// NewEmailService creates a new email service
func NewEmailService(ctx context.Context, cfg config.EmailConfig, appBaseURL string, log *logger.Logger) (*EmailService, error) {
	log = log.With("service", "EmailService")

	if cfg.FromEmail == "" {
		log.Info("email service disabled: EMAIL_FROM not configured")
		return &EmailService{enabled: false, log: log}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("email service enabled", "from", cfg.FromEmail, "region", cfg.AWSRegion)
	return &EmailService{
		client:     sesv2.NewFromConfig(awsCfg),
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		log:        log,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendAccountCreated tells a guest buyer about the account created for them
// and its initial password.
func (s *EmailService) SendAccountCreated(ctx context.Context, toEmail, name, password string) error {
	if !s.enabled {
		s.log.Debug("skipping account email (service disabled)")
		return nil
	}

	subject := "Your course account is ready"
	loginLink := s.appBaseURL + "/login"

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<p>Hi %s,</p>
	<p>Thanks for your purchase. We created an account so you can start learning right away.</p>
	<p><strong>Email:</strong> %s<br><strong>Temporary password:</strong> %s</p>
	<p><a href="%s">Sign in</a> and change your password from your profile.</p>
</body>
</html>
`, html.EscapeString(greetingName(name)), html.EscapeString(toEmail), html.EscapeString(password), html.EscapeString(loginLink))

	textBody := fmt.Sprintf(`Hi %s,

Thanks for your purchase. We created an account so you can start learning right away.

Email: %s
Temporary password: %s

Sign in at %s and change your password from your profile.
`, greetingName(name), toEmail, password, loginLink)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendPurchaseConfirmation confirms that a course is unlocked
func (s *EmailService) SendPurchaseConfirmation(ctx context.Context, toEmail, name string, course *models.Course) error {
	if !s.enabled {
		s.log.Debug("skipping purchase email (service disabled)", "course_id", course.ID)
		return nil
	}

	subject := fmt.Sprintf("You're enrolled in %s", course.Title)
	courseLink := fmt.Sprintf("%s/courses/%d", s.appBaseURL, course.ID)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<p>Hi %s,</p>
	<p>Your purchase of <strong>%s</strong> is complete.</p>
	<p><a href="%s">Start the course</a></p>
</body>
</html>
`, html.EscapeString(greetingName(name)), html.EscapeString(course.Title), html.EscapeString(courseLink))

	textBody := fmt.Sprintf(`Hi %s,

Your purchase of %s is complete.

Start the course: %s
`, greetingName(name), course.Title, courseLink)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

func greetingName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.log.Info("email sent", "subject", subject, "message_id", messageID)
	return nil
}
