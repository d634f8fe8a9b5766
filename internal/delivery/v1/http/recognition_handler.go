package http

import (
	"net/http"
	"strconv"

	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
)

type RecognitionHandler struct {
	recognitionUsecase usecase.RecognitionUC
	maxUploadSize      int64
	logger             logger.Logger
}

func NewRecognitionHandler(recognitionUsecase usecase.RecognitionUC, maxUploadSize int64, logger logger.Logger) *RecognitionHandler {
	return &RecognitionHandler{recognitionUsecase: recognitionUsecase, maxUploadSize: maxUploadSize, logger: logger}
}

// detect распознаёт товары продавца на изображении (multipart-поле file или сырое тело).
//
//	@Summary		Распознавание товаров на изображении
//	@Description	Находит объекты на изображении и сопоставляет их с товарами продавца
//	@Tags			recognition
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			sellerID	path		string			true	"ID продавца: 42 или seller_42"
//	@Param			file		formData	file			false	"Изображение"
//	@Success		200			{object}	DetectResponse
//	@Failure		400			{object}	ErrorResponse	"Некорректный запрос или изображение"
//	@Failure		413			{object}	ErrorResponse	"Файл слишком большой"
//	@Router			/sellers/{sellerID}/detect [post]
func (h *RecognitionHandler) detect(w http.ResponseWriter, r *http.Request) {
	tenant, err := sellerKey(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	data, err := readImage(w, r, h.maxUploadSize)
	if err != nil {
		h.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, err)
		return
	}

	res, err := h.recognitionUsecase.Recognize(r.Context(), tenant, data)
	if err != nil {
		h.logger.Warnf("recognize for %s: %s", tenant, err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, NewDetectResponse(res))
}

// search ищет товары продавца по тексту: ?q=...&k=...
//
//	@Summary		Текстовый поиск товаров
//	@Tags			recognition
//	@Produce		json
//	@Param			sellerID	path		string	true	"ID продавца: 42 или seller_42"
//	@Param			q			query		string	true	"Текст запроса"
//	@Param			k			query		int		false	"Число результатов"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	ErrorResponse	"Пустой запрос"
//	@Failure		404			{object}	ErrorResponse	"Индекс продавца не найден"
//	@Router			/sellers/{sellerID}/search [get]
func (h *RecognitionHandler) search(w http.ResponseWriter, r *http.Request) {
	tenant, err := sellerKey(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		if k, err = strconv.Atoi(raw); err != nil {
			WriteError(w, e.ErrStatusBadRequest)
			return
		}
	}

	res, err := h.recognitionUsecase.SearchByText(r.Context(), tenant, r.URL.Query().Get("q"), k)
	if err != nil {
		h.logger.Warnf("text search for %s: %s", tenant, err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, NewSearchResponse(res))
}

// modelInfo
//
//	@Summary	Состояние моделей и индексов
//	@Tags		recognition
//	@Produce	json
//	@Success	200	{object}	ModelInfoResponse
//	@Router		/model-info [get]
func (h *RecognitionHandler) modelInfo(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, NewModelInfoResponse(h.recognitionUsecase.ModelInfo()))
}
