package http

import (
	"net/http"
	"strconv"

	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
)

type TrainingHandler struct {
	trainingUsecase usecase.TrainingUC
	logger          logger.Logger
}

func NewTrainingHandler(trainingUsecase usecase.TrainingUC, logger logger.Logger) *TrainingHandler {
	return &TrainingHandler{trainingUsecase: trainingUsecase, logger: logger}
}

// train ставит задачу обучения и сразу отвечает 202; ход задачи виден через training-status.
//
//	@Summary		Запуск обучения
//	@Description	Ставит в очередь сборку индекса продавца
//	@Tags			training
//	@Produce		json
//	@Param			sellerID	path		string	true	"ID продавца: 42 или seller_42"
//	@Param			fine_tune	query		bool	false	"Дообучить эмбеддер перед сборкой"
//	@Success		202			{object}	TrainResponse
//	@Failure		400			{object}	ErrorResponse	"Некорректный ID продавца"
//	@Router			/sellers/{sellerID}/train [post]
func (h *TrainingHandler) train(w http.ResponseWriter, r *http.Request) {
	tenant, err := sellerKey(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	fineTune := false
	if raw := r.URL.Query().Get("fine_tune"); raw != "" {
		if fineTune, err = strconv.ParseBool(raw); err != nil {
			WriteError(w, e.ErrStatusBadRequest)
			return
		}
	}

	job, err := h.trainingUsecase.Submit(r.Context(), tenant, fineTune)
	if err != nil {
		h.logger.Errorf(err, "submit training for %s", tenant)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusAccepted, &TrainResponse{
		Status:   "training_started",
		SellerID: job.TenantKey,
		RunID:    job.RunID,
	})
}

// trainingStatus
//
//	@Summary	Статус обучения
//	@Tags		training
//	@Produce	json
//	@Param		sellerID	path		string	true	"ID продавца: 42 или seller_42"
//	@Success	200			{object}	domain.TrainingJob
//	@Router		/sellers/{sellerID}/training-status [get]
func (h *TrainingHandler) trainingStatus(w http.ResponseWriter, r *http.Request) {
	tenant, err := sellerKey(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	job, err := h.trainingUsecase.Status(r.Context(), tenant)
	if err != nil {
		h.logger.Errorf(err, "training status for %s", tenant)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, job)
}

// reload
//
//	@Summary	Перезагрузка индекса продавца
//	@Tags		training
//	@Produce	json
//	@Param		sellerID	path		string	true	"ID продавца: 42 или seller_42"
//	@Success	200			{object}	ReloadResponse
//	@Failure	404			{object}	ErrorResponse	"Индекс продавца не найден"
//	@Router		/sellers/{sellerID}/reload [post]
func (h *TrainingHandler) reload(w http.ResponseWriter, r *http.Request) {
	tenant, err := sellerKey(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.doReload(w, r, tenant)
}

// reloadAll
//
//	@Summary	Перезагрузка всех индексов
//	@Tags		training
//	@Produce	json
//	@Success	200	{object}	ReloadResponse
//	@Router		/reload [post]
func (h *TrainingHandler) reloadAll(w http.ResponseWriter, r *http.Request) {
	h.doReload(w, r, "")
}

func (h *TrainingHandler) doReload(w http.ResponseWriter, r *http.Request, tenant string) {
	res, err := h.trainingUsecase.Reload(r.Context(), tenant)
	if err != nil {
		h.logger.Warnf("reload %q: %s", tenant, err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, &ReloadResponse{Status: "success", Sellers: res.Tenants})
}
