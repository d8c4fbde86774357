package server

import (
	"strings"

	"nokoroa/internal/models"
	"nokoroa/internal/service"
	"nokoroa/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	ImageURL   string   `json:"imageUrl"`
	Location   *string  `json:"location"`
	Prefecture *string  `json:"prefecture"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Tags       []string `json:"tags"`
	IsPublic   *bool    `json:"isPublic"`
}

// updatePostRequest uses pointers so absent fields are left unchanged. A
// missing tags field keeps the tags; an empty array removes them.
type updatePostRequest struct {
	Title      *string  `json:"title"`
	Content    *string  `json:"content"`
	ImageURL   *string  `json:"imageUrl"`
	Location   *string  `json:"location"`
	Prefecture *string  `json:"prefecture"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Tags       []string `json:"tags"`
	IsPublic   *bool    `json:"isPublic"`
}

// GetPosts handles GET /api/posts
// @Summary List public posts
// @Description Newest public posts first
// @Tags posts
// @Produce json
// @Param limit query int false "Page size (1-50)" default(10)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.PostList
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return nil
	}

	list, err := s.postService.FindAll(c.UserContext(), page)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(list)
}

// SearchPosts handles GET /api/posts/search
// @Summary Search public posts
// @Description Filters combine with AND; tags match posts carrying any of them
// @Tags posts
// @Produce json
// @Param q query string false "Keyword in title, content or author name"
// @Param tags query string false "Comma-separated tag names"
// @Param location query string false "Location name substring"
// @Param authorId query int false "Author id"
// @Param limit query int false "Page size (1-50)" default(10)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.PostList
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/search [get]
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return nil
	}
	authorID, err := queryUint(c, "authorId")
	if err != nil {
		return nil
	}
	tags := splitList(c.Query("tags"))
	if verr := validation.ValidateTags(tags); verr != nil {
		_ = badRequest(c, verr.Error())
		return nil
	}

	list, err := s.postService.Search(c.UserContext(), service.SearchInput{
		Query:      strings.TrimSpace(c.Query("q")),
		Tags:       tags,
		Location:   c.Query("location"),
		AuthorID:   authorID,
		Pagination: page,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(list)
}

// SearchPostsByLocation handles GET /api/posts/search-by-location
// @Summary Search public posts by distance
// @Description With a center, returns posts within radius km ordered nearest first. Without one, lists posts that have coordinates.
// @Tags posts
// @Produce json
// @Param centerLat query number false "Center latitude"
// @Param centerLng query number false "Center longitude"
// @Param radius query number false "Radius in km" default(10)
// @Param q query string false "Keyword"
// @Param limit query int false "Page size (1-50)" default(10)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.PostList
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/search-by-location [get]
func (s *Server) SearchPostsByLocation(c *fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return nil
	}
	lat, err := queryFloat(c, "centerLat")
	if err != nil {
		return nil
	}
	lng, err := queryFloat(c, "centerLng")
	if err != nil {
		return nil
	}
	radius, err := queryFloat(c, "radius")
	if err != nil {
		return nil
	}

	if (lat == nil) != (lng == nil) {
		_ = badRequest(c, "centerLat and centerLng must be given together")
		return nil
	}
	if verr := validation.ValidateCoordinates(lat, lng); verr != nil {
		_ = badRequest(c, verr.Error())
		return nil
	}
	if radius != nil {
		if verr := validation.ValidateRadius(*radius); verr != nil {
			_ = badRequest(c, verr.Error())
			return nil
		}
	}

	list, err := s.postService.SearchByLocation(c.UserContext(), service.SearchByLocationInput{
		CenterLat:  lat,
		CenterLng:  lng,
		RadiusKm:   radius,
		Query:      strings.TrimSpace(c.Query("q")),
		Pagination: page,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(list)
}

// GetTags handles GET /api/posts/tags
// @Summary Tags in use
// @Description Tags linked to at least one public post, most used first
// @Tags posts
// @Produce json
// @Success 200 {object} models.TagList
// @Router /posts/tags [get]
func (s *Server) GetTags(c *fiber.Ctx) error {
	tags, err := s.postService.GetTags(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(tags)
}

// GetLocations handles GET /api/posts/locations
// @Summary Locations in use
// @Tags posts
// @Produce json
// @Success 200 {object} models.LocationList
// @Router /posts/locations [get]
func (s *Server) GetLocations(c *fiber.Ctx) error {
	locations, err := s.postService.GetLocations(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(locations)
}

// GetPost handles GET /api/posts/:id
// @Summary Get a post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.PublicPost
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.FindOne(c.UserContext(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(post)
}

// GetRelatedPosts handles GET /api/posts/:id/related
// @Summary Related posts
// @Description Never fails; an unknown post yields an empty list
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Param limit query int false "Number of posts (1-10)" default(3)
// @Success 200 {object} models.PostList
// @Router /posts/{id}/related [get]
func (s *Server) GetRelatedPosts(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	limit, err := queryInt(c, "limit", service.DefaultRelatedLimit)
	if err != nil {
		return nil
	}
	return c.JSON(s.postService.Related(c.UserContext(), id, limit))
}

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createPostRequest true "Post"
// @Success 201 {object} models.PublicPost
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}

	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.Create(c.UserContext(), service.CreatePostInput{
		AuthorID:   userID,
		Title:      req.Title,
		Content:    req.Content,
		ImageURL:   req.ImageURL,
		Location:   req.Location,
		Prefecture: req.Prefecture,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Tags:       req.Tags,
		IsPublic:   req.IsPublic,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
// @Summary Update own post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body updatePostRequest true "Fields to change"
// @Success 200 {object} models.PublicPost
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req updatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.Update(c.UserContext(), service.UpdatePostInput{
		UserID:     userID,
		PostID:     id,
		Title:      req.Title,
		Content:    req.Content,
		ImageURL:   req.ImageURL,
		Location:   req.Location,
		Prefecture: req.Prefecture,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Tags:       req.Tags,
		IsPublic:   req.IsPublic,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete own post
// @Tags posts
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.postService.Remove(c.UserContext(), service.RemovePostInput{UserID: userID, PostID: id}); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMyPosts handles GET /api/users/me/posts
// @Summary List own posts
// @Description All of the caller's posts, private ones included
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (1-50)" default(10)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.PostList
// @Router /users/me/posts [get]
func (s *Server) GetMyPosts(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return nil
	}
	page, err := parsePagination(c)
	if err != nil {
		return nil
	}

	list, err := s.postService.FindByAuthor(c.UserContext(), userID, page)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(list)
}
