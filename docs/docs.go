// Package docs 注册 Swagger 文档，路由变更时同步更新 docTemplate
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/admin/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["管理"],
                "summary": "管理员登录",
                "parameters": [
                    {"description": "密码", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.loginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/admin/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["管理"],
                "summary": "邮件发送记录",
                "parameters": [
                    {"type": "integer", "description": "订单ID", "name": "orderId", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "success, data, count", "schema": {"type": "object", "additionalProperties": true}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/admin/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["管理"],
                "summary": "统计",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/files": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["文件"],
                "summary": "文件列表",
                "parameters": [
                    {"type": "integer", "description": "订单ID", "name": "orderId", "in": "query"},
                    {"type": "string", "description": "文件ID", "name": "fileId", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "success, data, count", "schema": {"type": "object", "additionalProperties": true}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "post": {
                "consumes": ["multipart/form-data", "application/json"],
                "produces": ["application/json"],
                "tags": ["文件"],
                "summary": "上传执照文件",
                "parameters": [
                    {"type": "integer", "description": "订单ID", "name": "orderId", "in": "formData"},
                    {"type": "file", "description": "文件 (multipart)", "name": "file", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "success, fileId, file", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/files/{id}/content": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/pdf", "image/png", "image/jpeg"],
                "tags": ["文件"],
                "summary": "查看/下载文件",
                "parameters": [
                    {"type": "string", "description": "文件ID", "name": "id", "in": "path", "required": true},
                    {"type": "boolean", "description": "作为附件下载", "name": "download", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/orders": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["订单"],
                "summary": "订单列表",
                "parameters": [
                    {"type": "integer", "description": "订单ID", "name": "orderId", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "success, data, count", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "post": {
                "consumes": ["application/json", "multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["订单"],
                "summary": "提交订单",
                "parameters": [
                    {"description": "订单信息", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.OrderInput"}}
                ],
                "responses": {
                    "200": {"description": "success, ok, orderId, order, fileId", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/response.Response"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["订单"],
                "summary": "修改订单状态",
                "parameters": [
                    {"description": "orderId 与 status", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.updateOrderRequest"}}
                ],
                "responses": {
                    "200": {"description": "success, updatedOrder", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/orders/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["订单"],
                "summary": "订单详情",
                "parameters": [
                    {"type": "integer", "description": "订单ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "success, data", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "handler.loginRequest": {
            "type": "object",
            "required": ["password"],
            "properties": {"password": {"type": "string"}}
        },
        "handler.updateOrderRequest": {
            "type": "object",
            "properties": {
                "orderId": {"type": "integer"},
                "status": {"type": "string", "enum": ["pending", "processing", "shipped", "delivered", "cancelled"]}
            }
        },
        "response.ErrorDetail": {
            "type": "object",
            "properties": {
                "field": {"type": "string", "example": "contact_email"},
                "message": {"type": "string", "example": "contact_email is required"}
            }
        },
        "response.Response": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"type": "string"},
                "details": {"type": "array", "items": {"$ref": "#/definitions/response.ErrorDetail"}}
            }
        },
        "service.OrderInput": {
            "type": "object",
            "properties": {
                "full_name": {"type": "string"},
                "company_name": {"type": "string"},
                "company_phone": {"type": "string"},
                "company_address": {"type": "string"},
                "home_address": {"type": "string"},
                "home_phone": {"type": "string"},
                "contact_name": {"type": "string"},
                "contact_phone": {"type": "string"},
                "contact_email": {"type": "string"},
                "product": {"type": "string", "example": "eye-booster"},
                "quantity": {"type": "integer", "minimum": 1, "maximum": 999}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Medorder API",
	Description:      "医疗用品订单受理服务",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
