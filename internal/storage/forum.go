package storage

import (
	"fmt"

	"veranda/internal/models"

	"go.etcd.io/bbolt"
)

func postToDB(p models.ForumPost) *DBForumPost {
	dbPost := &DBForumPost{
		ID:         p.ID,
		Title:      p.Title,
		Body:       p.Body,
		BodyHTML:   p.BodyHTML,
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
		Category:   string(p.Category),
		Pinned:     p.Pinned,
		Locked:     p.Locked,
		CreatedAt:  p.CreatedAt,
	}
	for _, r := range p.Replies {
		dbPost.Replies = append(dbPost.Replies, DBForumReply{
			ID:         r.ID,
			Body:       r.Body,
			BodyHTML:   r.BodyHTML,
			AuthorID:   r.AuthorID,
			AuthorName: r.AuthorName,
			CreatedAt:  r.CreatedAt,
		})
	}
	return dbPost
}

func postFromDB(p *DBForumPost) models.ForumPost {
	post := models.ForumPost{
		ID:         p.ID,
		Title:      p.Title,
		Body:       p.Body,
		BodyHTML:   p.BodyHTML,
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
		Category:   models.ForumCategory(p.Category),
		Pinned:     p.Pinned,
		Locked:     p.Locked,
		CreatedAt:  p.CreatedAt,
		Replies:    make([]models.ForumReply, 0, len(p.Replies)),
	}
	for _, r := range p.Replies {
		post.Replies = append(post.Replies, models.ForumReply{
			ID:         r.ID,
			PostID:     p.ID,
			Body:       r.Body,
			BodyHTML:   r.BodyHTML,
			AuthorID:   r.AuthorID,
			AuthorName: r.AuthorName,
			CreatedAt:  r.CreatedAt,
		})
	}
	return post
}

func (s *BboltStorage) CreateForumPost(post models.ForumPost) error {
	if post.ID == "" {
		return fmt.Errorf("%w: post without id", models.ErrInvalidArgument)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx.Bucket(bucketForum), postToDB(post))
	})
	return writeErr("create forum post", err)
}

func (s *BboltStorage) GetForumPost(id string) (models.ForumPost, error) {
	var dbPost DBForumPost
	err := s.db.View(func(tx *bbolt.Tx) error {
		found, err := getRecord(tx.Bucket(bucketForum), []byte(id), &dbPost)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return models.ForumPost{}, err
	}
	return postFromDB(&dbPost), nil
}

// ListForumPosts returns all posts in storage order.
func (s *BboltStorage) ListForumPosts() ([]models.ForumPost, error) {
	var posts []models.ForumPost
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketForum).ForEach(func(k, v []byte) error {
			var dbPost DBForumPost
			if err := dbPost.UnmarshalBinary(v); err != nil {
				return err
			}
			posts = append(posts, postFromDB(&dbPost))
			return nil
		})
	})
	return posts, err
}

// UpdateForumPost applies fn to the stored post inside a single
// transaction, so checks made by fn hold at the time of the write.
func (s *BboltStorage) UpdateForumPost(id string, fn func(*models.ForumPost) error) (models.ForumPost, error) {
	var updated models.ForumPost
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketForum)
		var dbPost DBForumPost
		found, err := getRecord(b, []byte(id), &dbPost)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
		}

		post := postFromDB(&dbPost)
		if err := fn(&post); err != nil {
			return err
		}
		post.ID = id
		updated = post
		return putRecord(b, postToDB(post))
	})
	if err != nil {
		return models.ForumPost{}, writeErr("update forum post", err)
	}
	return updated, nil
}
