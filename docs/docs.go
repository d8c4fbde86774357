// Package docs registers the generated OpenAPI description with swag.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/posts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "List public posts",
                "parameters": [
                    {"type": "integer", "default": 10, "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PostList"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Create a post",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.createPostRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.PublicPost"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/posts/search": {
            "get": {
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Search public posts",
                "parameters": [
                    {"type": "string", "name": "q", "in": "query"},
                    {"type": "string", "name": "tags", "in": "query"},
                    {"type": "string", "name": "location", "in": "query"},
                    {"type": "integer", "name": "authorId", "in": "query"},
                    {"type": "integer", "default": 10, "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PostList"}}
                }
            }
        },
        "/posts/search-by-location": {
            "get": {
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Search public posts by distance",
                "parameters": [
                    {"type": "number", "name": "centerLat", "in": "query"},
                    {"type": "number", "name": "centerLng", "in": "query"},
                    {"type": "number", "default": 10, "name": "radius", "in": "query"},
                    {"type": "string", "name": "q", "in": "query"},
                    {"type": "integer", "default": 10, "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PostList"}}
                }
            }
        },
        "/posts/tags": {
            "get": {
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Tags in use",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.TagList"}}}
            }
        },
        "/posts/locations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Locations in use",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.LocationList"}}}
            }
        },
        "/posts/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Get a post",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PublicPost"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Update own post",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.updatePostRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PublicPost"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["posts"],
                "summary": "Delete own post",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/posts/{id}/related": {
            "get": {
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "Related posts",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "default": 3, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PostList"}}}
            }
        },
        "/users/me/posts": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["posts"],
                "summary": "List own posts",
                "parameters": [
                    {"type": "integer", "default": 10, "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PostList"}}}
            }
        },
        "/ws/feed": {
            "get": {
                "tags": ["feed"],
                "summary": "Realtime post feed",
                "responses": {}
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "details": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "models.PublicAuthor": {
            "type": "object",
            "properties": {
                "avatar": {"type": "string"},
                "email": {"type": "string"},
                "id": {"type": "integer"},
                "name": {"type": "string"}
            }
        },
        "models.PublicPost": {
            "type": "object",
            "properties": {
                "author": {"$ref": "#/definitions/models.PublicAuthor"},
                "authorId": {"type": "integer"},
                "content": {"type": "string"},
                "createdAt": {"type": "string"},
                "distance": {"type": "number"},
                "favoritesCount": {"type": "integer"},
                "id": {"type": "integer"},
                "imageUrl": {"type": "string"},
                "isPublic": {"type": "boolean"},
                "latitude": {"type": "number"},
                "location": {"type": "string"},
                "locationId": {"type": "integer"},
                "longitude": {"type": "number"},
                "prefecture": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "title": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "models.PostList": {
            "type": "object",
            "properties": {
                "hasMore": {"type": "boolean"},
                "posts": {"type": "array", "items": {"$ref": "#/definitions/models.PublicPost"}},
                "total": {"type": "integer"}
            }
        },
        "models.TagCount": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "name": {"type": "string"},
                "slug": {"type": "string"}
            }
        },
        "models.TagList": {
            "type": "object",
            "properties": {
                "tags": {"type": "array", "items": {"$ref": "#/definitions/models.TagCount"}},
                "total": {"type": "integer"}
            }
        },
        "models.LocationCount": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "name": {"type": "string"},
                "prefecture": {"type": "string"}
            }
        },
        "models.LocationList": {
            "type": "object",
            "properties": {
                "locations": {"type": "array", "items": {"$ref": "#/definitions/models.LocationCount"}},
                "total": {"type": "integer"}
            }
        },
        "server.createPostRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "string"},
                "imageUrl": {"type": "string"},
                "isPublic": {"type": "boolean"},
                "latitude": {"type": "number"},
                "location": {"type": "string"},
                "longitude": {"type": "number"},
                "prefecture": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "title": {"type": "string"}
            }
        },
        "server.updatePostRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "string"},
                "imageUrl": {"type": "string"},
                "isPublic": {"type": "boolean"},
                "latitude": {"type": "number"},
                "location": {"type": "string"},
                "longitude": {"type": "number"},
                "prefecture": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "title": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8375",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "nokoroa Discovery API",
	Description:      "Travel post discovery: keyword, tag, location and distance search",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
