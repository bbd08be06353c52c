// Package forum implements threaded posts on top of the chat store.
// Every write is announced to the forum room.
package forum

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"veranda/internal/content"
	"veranda/internal/models"
	"veranda/internal/moderation"

	"github.com/google/uuid"
)

type Store interface {
	GetUser(id string) (models.User, error)
	CreateForumPost(post models.ForumPost) error
	GetForumPost(id string) (models.ForumPost, error)
	ListForumPosts() ([]models.ForumPost, error)
	UpdateForumPost(id string, fn func(*models.ForumPost) error) (models.ForumPost, error)
}

type Publisher interface {
	PublishRoomEvent(roomID string, event models.ServerEvent) int
}

type Service struct {
	store     Store
	publisher Publisher
	gate      *moderation.Gate
	now       func() time.Time
}

func NewService(store Store, publisher Publisher) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		gate:      moderation.NewGate(),
		now:       time.Now,
	}
}

func authorName(u models.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.UserName != "" {
		return u.UserName
	}
	return u.ID
}

// writer loads the acting user and checks it may write.
func (s *Service) writer(userID string) (models.User, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return models.User{}, err
	}
	if err := s.gate.Check(user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) admin(userID string) error {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return err
	}
	return moderation.RequireAdmin(user)
}

func renderBody(body string) (string, string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", "", fmt.Errorf("%w: %w", models.ErrInvalidArgument, content.ErrEmpty)
	}
	if n := len([]rune(body)); n > content.MaxMessageLength {
		return "", "", fmt.Errorf("%w: %w", models.ErrInvalidArgument, content.ErrTooLong)
	}
	html, err := content.RenderMarkdown(body)
	if err != nil {
		return "", "", err
	}
	return body, html, nil
}

func (s *Service) CreatePost(authorID, title, body, category string) (models.ForumPost, error) {
	author, err := s.writer(authorID)
	if err != nil {
		return models.ForumPost{}, err
	}

	title, err = content.CleanText(title, content.MaxTitleLength)
	if err != nil {
		return models.ForumPost{}, fmt.Errorf("%w: title: %w", models.ErrInvalidArgument, err)
	}
	body, html, err := renderBody(body)
	if err != nil {
		return models.ForumPost{}, err
	}

	cat := models.ParseCategory(category)
	if cat == models.CategoryAnnouncements && author.Role != models.RoleAdministrator {
		return models.ForumPost{}, fmt.Errorf("%w: only administrators post announcements", models.ErrAuthorizationDenied)
	}

	post := models.ForumPost{
		ID:         uuid.NewString(),
		Title:      title,
		Body:       body,
		BodyHTML:   html,
		AuthorID:   author.ID,
		AuthorName: authorName(author),
		Category:   cat,
		CreatedAt:  s.now().UnixMilli(),
		Replies:    []models.ForumReply{},
	}
	if err := s.store.CreateForumPost(post); err != nil {
		return models.ForumPost{}, err
	}

	s.publisher.PublishRoomEvent(models.ForumRoomID, models.ServerEvent{
		Type: models.ServerEventPostCreated,
		Post: &post,
	})
	return post, nil
}

// Reply appends a reply to a post. The lock flag is checked in the same
// transaction as the write, so a reply never lands on a locked post.
func (s *Service) Reply(postID, authorID, body string) (models.ForumReply, error) {
	author, err := s.writer(authorID)
	if err != nil {
		return models.ForumReply{}, err
	}
	body, html, err := renderBody(body)
	if err != nil {
		return models.ForumReply{}, err
	}

	reply := models.ForumReply{
		ID:         uuid.NewString(),
		PostID:     postID,
		Body:       body,
		BodyHTML:   html,
		AuthorID:   author.ID,
		AuthorName: authorName(author),
		CreatedAt:  s.now().UnixMilli(),
	}
	_, err = s.store.UpdateForumPost(postID, func(p *models.ForumPost) error {
		if p.Locked {
			return fmt.Errorf("%w: %s", models.ErrPostLocked, p.ID)
		}
		p.Replies = append(p.Replies, reply)
		return nil
	})
	if err != nil {
		return models.ForumReply{}, err
	}

	s.publisher.PublishRoomEvent(models.ForumRoomID, models.ServerEvent{
		Type:  models.ServerEventReplyAdded,
		Reply: &reply,
	})
	return reply, nil
}

func (s *Service) TogglePin(actorID, postID string) (models.ForumPost, error) {
	return s.toggle(actorID, postID, func(p *models.ForumPost) { p.Pinned = !p.Pinned })
}

// ToggleLock flips the lock flag. Unlocking restores replies.
func (s *Service) ToggleLock(actorID, postID string) (models.ForumPost, error) {
	return s.toggle(actorID, postID, func(p *models.ForumPost) { p.Locked = !p.Locked })
}

func (s *Service) toggle(actorID, postID string, flip func(*models.ForumPost)) (models.ForumPost, error) {
	if err := s.admin(actorID); err != nil {
		return models.ForumPost{}, err
	}
	post, err := s.store.UpdateForumPost(postID, func(p *models.ForumPost) error {
		flip(p)
		return nil
	})
	if err != nil {
		return models.ForumPost{}, err
	}

	s.publisher.PublishRoomEvent(models.ForumRoomID, models.ServerEvent{
		Type: models.ServerEventPostUpdated,
		Post: &post,
	})
	return post, nil
}

func (s *Service) Get(id string) (models.ForumPost, error) {
	return s.store.GetForumPost(id)
}

// List returns the posts of a category, or all posts for an empty
// category. Pinned posts come first, then newest first.
func (s *Service) List(category string) ([]models.ForumPost, error) {
	posts, err := s.store.ListForumPosts()
	if err != nil {
		return nil, err
	}

	result := make([]models.ForumPost, 0, len(posts))
	for _, p := range posts {
		if category != "" && string(p.Category) != category {
			continue
		}
		result = append(result, p)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Pinned != result[j].Pinned {
			return result[i].Pinned
		}
		return result[i].CreatedAt > result[j].CreatedAt
	})
	return result, nil
}
