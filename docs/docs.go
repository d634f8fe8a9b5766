// Package docs регистрирует OpenAPI-описание HTTP API для swagger UI.
// Описание держится в соответствии с аннотациями хендлеров в internal/delivery/v1/http.
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
        "/model-info": {
            "get": {
                "description": "Возвращает загруженные индексы продавцов и пороги распознавания",
                "produces": ["application/json"],
                "tags": ["recognition"],
                "summary": "Состояние моделей и индексов",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/http.ModelInfoResponse"}
                    }
                }
            }
        },
        "/reload": {
            "post": {
                "description": "Перечитывает с диска индексы всех продавцов",
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Перезагрузка всех индексов",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/http.ReloadResponse"}
                    },
                    "500": {
                        "description": "Внутренняя ошибка",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    }
                }
            }
        },
        "/sellers/{sellerID}/detect": {
            "post": {
                "description": "Находит объекты на изображении и сопоставляет их с товарами продавца",
                "consumes": ["multipart/form-data", "image/jpeg", "image/png"],
                "produces": ["application/json"],
                "tags": ["recognition"],
                "summary": "Распознавание товаров на изображении",
                "parameters": [
                    {"type": "string", "description": "ID продавца: 42 или seller_42", "name": "sellerID", "in": "path", "required": true},
                    {"type": "file", "description": "Изображение", "name": "file", "in": "formData"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/http.DetectResponse"}
                    },
                    "400": {
                        "description": "Некорректный запрос или изображение",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    },
                    "413": {
                        "description": "Файл слишком большой",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    }
                }
            }
        },
        "/sellers/{sellerID}/search": {
            "get": {
                "description": "Ищет товары продавца по текстовому описанию",
                "produces": ["application/json"],
                "tags": ["recognition"],
                "summary": "Текстовый поиск товаров",
                "parameters": [
                    {"type": "string", "description": "ID продавца: 42 или seller_42", "name": "sellerID", "in": "path", "required": true},
                    {"type": "string", "description": "Текст запроса", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "description": "Число результатов", "name": "k", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/http.SearchResponse"}
                    },
                    "400": {
                        "description": "Пустой запрос",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    },
                    "404": {
                        "description": "Индекс продавца не найден",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    }
                }
            }
        },
        "/sellers/{sellerID}/train": {
            "post": {
                "description": "Ставит в очередь сборку индекса продавца, ход задачи виден через training-status",
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Запуск обучения",
                "parameters": [
                    {"type": "string", "description": "ID продавца: 42 или seller_42", "name": "sellerID", "in": "path", "required": true},
                    {"type": "boolean", "description": "Дообучить эмбеддер перед сборкой", "name": "fine_tune", "in": "query"}
                ],
                "responses": {
                    "202": {
                        "description": "Accepted",
                        "schema": {"$ref": "#/definitions/http.TrainResponse"}
                    },
                    "400": {
                        "description": "Некорректный ID продавца",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    }
                }
            }
        },
        "/sellers/{sellerID}/training-status": {
            "get": {
                "description": "Возвращает последнее состояние задачи обучения продавца",
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Статус обучения",
                "parameters": [
                    {"type": "string", "description": "ID продавца: 42 или seller_42", "name": "sellerID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/domain.TrainingJob"}
                    }
                }
            }
        },
        "/sellers/{sellerID}/reload": {
            "post": {
                "description": "Перечитывает с диска индекс продавца",
                "produces": ["application/json"],
                "tags": ["training"],
                "summary": "Перезагрузка индекса продавца",
                "parameters": [
                    {"type": "string", "description": "ID продавца: 42 или seller_42", "name": "sellerID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/http.ReloadResponse"}
                    },
                    "404": {
                        "description": "Индекс продавца не найден",
                        "schema": {"$ref": "#/definitions/http.ErrorResponse"}
                    }
                }
            }
        }
    },
    "definitions": {
        "domain.Detection": {
            "type": "object",
            "properties": {
                "bbox": {"type": "array", "items": {"type": "integer"}},
                "class": {"type": "string"},
                "class_id": {"type": "integer"},
                "confidence": {"type": "number"}
            }
        },
        "domain.Prediction": {
            "type": "object",
            "properties": {
                "bbox": {"type": "array", "items": {"type": "integer"}},
                "confidence": {"type": "number"},
                "price": {"type": "number"},
                "product_id": {"type": "string"},
                "product_name": {"type": "string"},
                "similarity_score": {"type": "number"}
            }
        },
        "domain.TrainingJob": {
            "type": "object",
            "properties": {
                "fine_tune": {"type": "boolean"},
                "message": {"type": "string"},
                "progress": {"type": "integer"},
                "run_id": {"type": "string"},
                "seller_id": {"type": "string"},
                "status": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "http.DetectResponse": {
            "type": "object",
            "properties": {
                "detections": {"type": "array", "items": {"$ref": "#/definitions/domain.Detection"}},
                "message": {"type": "string"},
                "predictions": {"type": "array", "items": {"$ref": "#/definitions/domain.Prediction"}},
                "seller_id": {"type": "string"},
                "trained": {"type": "boolean"}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"}
            }
        },
        "http.ModelInfoResponse": {
            "type": "object",
            "properties": {
                "conf_threshold": {"type": "number"},
                "indexes": {"type": "array", "items": {"$ref": "#/definitions/http.SellerIndexResponse"}},
                "iou_threshold": {"type": "number"},
                "loaded_sellers": {"type": "array", "items": {"type": "string"}},
                "match_threshold": {"type": "number"},
                "min_object_size": {"type": "integer"},
                "status": {"type": "string"},
                "vector_size": {"type": "integer"}
            }
        },
        "http.ReloadResponse": {
            "type": "object",
            "properties": {
                "sellers": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string"}
            }
        },
        "http.SearchHitResponse": {
            "type": "object",
            "properties": {
                "price": {"type": "number"},
                "product_id": {"type": "string"},
                "product_name": {"type": "string"},
                "similarity_score": {"type": "number"}
            }
        },
        "http.SearchResponse": {
            "type": "object",
            "properties": {
                "query": {"type": "string"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/http.SearchHitResponse"}},
                "seller_id": {"type": "string"}
            }
        },
        "http.SellerIndexResponse": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "seller_id": {"type": "string"},
                "total_embeddings": {"type": "integer"},
                "unique_products": {"type": "integer"}
            }
        },
        "http.TrainResponse": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "seller_id": {"type": "string"},
                "status": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo: общие сведения об API, доступные для переопределения при старте.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Vision Service API",
	Description:      "Распознавание товаров продавцов на изображениях и управление их индексами.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
