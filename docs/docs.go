// Package docs holds the Swagger document served on /swagger.
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
        "/api/auth/register": {"post": {"tags": ["Auth"], "summary": "Регистрация", "responses": {"201": {"description": "Created"}}}},
        "/api/auth/login": {"post": {"tags": ["Auth"], "summary": "Вход", "responses": {"200": {"description": "OK"}}}},
        "/api/auth/verify-otp": {"post": {"tags": ["Auth"], "summary": "Подтверждение кода из WhatsApp", "responses": {"200": {"description": "OK"}}}},
        "/api/auth/resend-otp": {"post": {"tags": ["Auth"], "summary": "Повторная отправка кода", "responses": {"200": {"description": "OK"}}}},
        "/api/auth/me": {"get": {"tags": ["Auth"], "summary": "Текущий пользователь", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/users": {
            "get": {"tags": ["Users"], "summary": "Список клиентов", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Users"], "summary": "Создать клиента (сразу подтверждён)", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/api/users/{id}": {
            "get": {"tags": ["Users"], "summary": "Клиент по ID", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["Users"], "summary": "Обновить клиента", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["Users"], "summary": "Удалить пользователя", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/subscriptions/vapid-public-key": {"get": {"tags": ["Subscriptions"], "summary": "Публичный VAPID ключ", "responses": {"200": {"description": "OK"}}}},
        "/api/subscriptions": {
            "get": {"tags": ["Subscriptions"], "summary": "Мои подписки", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Subscriptions"], "summary": "Сохранить push-подписку", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/api/subscriptions/{id}": {"delete": {"tags": ["Subscriptions"], "summary": "Удалить подписку", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/subscriptions/admin/all": {"get": {"tags": ["Subscriptions"], "summary": "Все подписки (админ)", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/notifications": {
            "get": {"tags": ["Notifications"], "summary": "Мои уведомления", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Notifications"], "summary": "Создать уведомление", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/api/notifications/{id}": {
            "get": {"tags": ["Notifications"], "summary": "Уведомление по ID", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["Notifications"], "summary": "Удалить уведомление", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/notifications/stream": {"get": {"tags": ["Notifications"], "summary": "Поток новых уведомлений (SSE)", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/notifications/admin/all": {"get": {"tags": ["Notifications"], "summary": "Все уведомления (админ)", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/api/notifications/admin/send": {"post": {"tags": ["Notifications"], "summary": "Отправить уведомление клиенту (админ)", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}},
        "/api/admin/dashboard": {"get": {"tags": ["Admin"], "summary": "Статистика для админки", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}}
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
	Title:            "PWA Notifications API",
	Description:      "WhatsApp OTP auth and Web Push notifications.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
