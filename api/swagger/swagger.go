// Package swagger holds the generated API document served at /docs.
// Regenerate with: swag init -g cmd/attendance-api/main.go -o api/swagger
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "University Attendance API",
        "description": "Geofenced token-based attendance tracking for university courses.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Login, refresh, and logout"},
        {"name": "Users", "description": "Account administration"},
        {"name": "Students", "description": "Student profiles and enrollments"},
        {"name": "Lecturers", "description": "Lecturer profiles and locations"},
        {"name": "Courses", "description": "Course catalogue"},
        {"name": "Enrollments", "description": "Course membership"},
        {"name": "Tokens", "description": "Check-in token issuance"},
        {"name": "Sessions", "description": "Attendance session lifecycle"},
        {"name": "Checkin", "description": "Student check-in"},
        {"name": "Reports", "description": "Rosters, exports, and histories"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
