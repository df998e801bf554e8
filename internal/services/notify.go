package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/pkg/logger"
	"gorm.io/gorm"
)

// NotifyService owns every fire-and-forget side effect triggered by a
// workflow transition: in-app notification rows plus outbound email.
// Handlers enqueue and return immediately; delivery never converts into a
// caller-visible error.
type NotifyService struct {
	DB     *gorm.DB
	Mailer Mailer
	cfg    config.NotifyConfig
	queue  chan notifyEvent
}

type notifyEvent struct {
	rows   []models.Notification
	emails []emailJob
}

type emailJob struct {
	to       string
	template emailTemplate
}

func NewNotifyService(db *gorm.DB, mailer Mailer, cfg config.NotifyConfig) *NotifyService {
	if cfg.QueueBufferSize <= 0 {
		cfg.QueueBufferSize = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	s := &NotifyService{
		DB:     db,
		Mailer: mailer,
		cfg:    cfg,
		queue:  make(chan notifyEvent, cfg.QueueBufferSize),
	}
	go s.processQueue()
	return s
}

func (s *NotifyService) enqueue(event notifyEvent) {
	select {
	case s.queue <- event:
	default:
		logger.Warn("notify_queue_full", map[string]interface{}{
			"dropped_rows":   len(event.rows),
			"dropped_emails": len(event.emails),
		})
	}
}

func (s *NotifyService) processQueue() {
	for event := range s.queue {
		for i := range event.rows {
			if err := s.DB.Create(&event.rows[i]).Error; err != nil {
				logger.Error("notification_insert_failed", err, map[string]interface{}{
					"type":    string(event.rows[i].Type),
					"user_id": event.rows[i].UserID.String(),
				})
			}
		}
		for _, job := range event.emails {
			s.deliverWithRetry(job)
		}
	}
}

func (s *NotifyService) deliverWithRetry(job emailJob) {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err = s.Mailer.Send(job.to, job.template.Subject, job.template.HTMLBody, job.template.TextBody)
		if err == nil {
			return
		}
		logger.Warn("email_delivery_retry", map[string]interface{}{
			"to":      job.to,
			"subject": job.template.Subject,
			"attempt": attempt,
			"error":   err.Error(),
		})
		if attempt < s.cfg.MaxAttempts {
			time.Sleep(s.cfg.RetryDelay)
		}
	}
	logger.Error("email_delivery_failed", err, map[string]interface{}{
		"to":      job.to,
		"subject": job.template.Subject,
	})
}

// JoinRequestSubmitted fans out to every group admin.
func (s *NotifyService) JoinRequestSubmitted(group *models.Group, requester *models.User, message string) {
	admins := s.groupAdmins(group.ID)

	event := notifyEvent{}
	text := fmt.Sprintf("%s requested to join \"%s\"", requester.DisplayName, group.Name)
	for _, admin := range admins {
		if admin.ID == requester.ID {
			continue
		}
		event.rows = append(event.rows, models.Notification{
			UserID:  admin.ID,
			ActorID: requester.ID,
			Type:    models.NotificationJoinRequest,
			GroupID: &group.ID,
			Message: text,
		})
		event.emails = append(event.emails, emailJob{
			to:       admin.Email,
			template: joinRequestTemplate(group.Name, requester.DisplayName, requester.Email, message),
		})
	}
	s.enqueue(event)
}

// JoinRequestResolved notifies the requester of the decision.
func (s *NotifyService) JoinRequestResolved(group *models.Group, requester *models.User, resolvedBy uuid.UUID, approved bool) {
	event := notifyEvent{}

	if approved {
		event.rows = append(event.rows, models.Notification{
			UserID:  requester.ID,
			ActorID: resolvedBy,
			Type:    models.NotificationJoinApproved,
			GroupID: &group.ID,
			Message: fmt.Sprintf("Your request to join \"%s\" was approved", group.Name),
		})
		event.emails = append(event.emails, emailJob{to: requester.Email, template: joinApprovedTemplate(group.Name)})
	} else {
		event.rows = append(event.rows, models.Notification{
			UserID:  requester.ID,
			ActorID: resolvedBy,
			Type:    models.NotificationJoinRejected,
			GroupID: &group.ID,
			Message: fmt.Sprintf("Your request to join \"%s\" was declined", group.Name),
		})
		event.emails = append(event.emails, emailJob{to: requester.Email, template: joinRejectedTemplate(group.Name)})
	}
	s.enqueue(event)
}

// InvitationEmail delivers an email-mode invitation to its recipient.
func (s *NotifyService) InvitationEmail(group *models.Group, inviter *models.User, toEmail, invitationURL string) {
	s.enqueue(notifyEvent{
		emails: []emailJob{{
			to:       toEmail,
			template: invitationTemplate(group.Name, inviter.DisplayName, invitationURL),
		}},
	})
}

// MemberRemoved tells the removed user.
func (s *NotifyService) MemberRemoved(group *models.Group, actorID, targetUserID uuid.UUID) {
	s.enqueue(notifyEvent{
		rows: []models.Notification{{
			UserID:  targetUserID,
			ActorID: actorID,
			Type:    models.NotificationMemberRemoved,
			GroupID: &group.ID,
			Message: fmt.Sprintf("You were removed from \"%s\"", group.Name),
		}},
	})
}

// MemberJoined tells group admins that someone entered via invitation or
// direct join.
func (s *NotifyService) MemberJoined(group *models.Group, newMember *models.User) {
	admins := s.groupAdmins(group.ID)

	event := notifyEvent{}
	for _, admin := range admins {
		if admin.ID == newMember.ID {
			continue
		}
		event.rows = append(event.rows, models.Notification{
			UserID:  admin.ID,
			ActorID: newMember.ID,
			Type:    models.NotificationMemberAdded,
			GroupID: &group.ID,
			Message: fmt.Sprintf("%s joined \"%s\"", newMember.DisplayName, group.Name),
		})
	}
	s.enqueue(event)
}

// Welcome greets a freshly registered account.
func (s *NotifyService) Welcome(user *models.User) {
	s.enqueue(notifyEvent{
		emails: []emailJob{{to: user.Email, template: welcomeTemplate(user.DisplayName)}},
	})
}

func (s *NotifyService) groupAdmins(groupID uuid.UUID) []models.User {
	var admins []models.User
	err := s.DB.
		Joins("JOIN group_memberships ON group_memberships.user_id = users.id").
		Where("group_memberships.group_id = ? AND group_memberships.role IN ?",
			groupID, []models.GroupMembershipRole{models.GroupRoleOwner, models.GroupRoleAdmin}).
		Find(&admins).Error
	if err != nil {
		logger.Error("notify_admin_lookup_failed", err, map[string]interface{}{
			"group_id": groupID.String(),
		})
		return nil
	}
	return admins
}
