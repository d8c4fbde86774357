// Package format turns stored posts into their public JSON shapes.
package format

import "nokoroa/internal/models"

// Post flattens a stored post. It never fails: absent relations become nulls
// and a post without tags gets an empty list.
func Post(p *models.Post) models.PublicPost {
	out := models.PublicPost{
		ID:         p.ID,
		Title:      p.Title,
		Content:    p.Content,
		ImageURL:   p.ImageURL,
		IsPublic:   p.IsPublic,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		AuthorID:   p.AuthorID,
		LocationID: p.LocationID,
		Tags:       p.TagNames(),
		Author: models.PublicAuthor{
			ID:     p.Author.ID,
			Name:   p.Author.Name,
			Email:  p.Author.Email,
			Avatar: p.Author.Avatar,
		},
		Distance: p.Distance,
	}
	if out.Author.ID == 0 {
		out.Author.ID = p.AuthorID
	}

	if loc := p.Location; loc != nil {
		name := loc.Name
		out.Location = &name
		out.Prefecture = loc.Prefecture
		out.Latitude = loc.Latitude
		out.Longitude = loc.Longitude
	}
	return out
}

// Posts formats each post in order.
func Posts(posts []models.Post) []models.PublicPost {
	out := make([]models.PublicPost, len(posts))
	for i := range posts {
		out[i] = Post(&posts[i])
	}
	return out
}

// Page builds the list envelope. hasMore holds when rows remain past this
// window.
func Page(posts []models.Post, total int64, limit, offset int) *models.PostList {
	return &models.PostList{
		Posts:   Posts(posts),
		Total:   total,
		HasMore: int64(offset+limit) < total,
	}
}

// Empty is the envelope for a lookup that found nothing.
func Empty() *models.PostList {
	return &models.PostList{Posts: []models.PublicPost{}}
}
