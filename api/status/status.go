package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/orderwise/orderwise/log"
	"github.com/orderwise/orderwise/saga"
)

// OrderStatus is the read model of one order saga as exposed over HTTP.
type OrderStatus struct {
	OrderUID         string `json:"order_uid"`
	CustomerUID      string `json:"customer_uid"`
	State            string `json:"state"`
	PaymentState     string `json:"payment_state"`
	InventoryState   string `json:"inventory_state"`
	FulfillmentState string `json:"fulfillment_state"`
	Version          int64  `json:"version"`
	CancelReason     string `json:"cancel_reason,omitempty"`
	DeliveryAttempts int    `json:"delivery_attempts,omitempty"`
}

type OrderBatch struct {
	Total int           `json:"total"`
	Items []OrderStatus `json:"items"`
}

type Pagination struct {
	Offset int
	Limit  int
}

type StatusService interface {
	GetStatus(ctx context.Context, orderUID string) (*OrderStatus, error)
	GetByState(ctx context.Context, state string, pagination *Pagination) (*OrderBatch, error)
}

func NewStatusService(store saga.Store) StatusService {
	return &statusService{store: store}
}

type statusService struct {
	store saga.Store
}

func (s statusService) GetStatus(ctx context.Context, orderUID string) (*OrderStatus, error) {
	snapshot, err := s.store.GetSnapshot(ctx, orderUID)

	if err != nil {
		return nil, errors.Wrapf(err, "error loading order '%s'", orderUID)
	}

	if snapshot == nil {
		return nil, NewResponseError(http.StatusNotFound, errors.Errorf("order '%s' not found", orderUID))
	}

	status := fromSnapshot(*snapshot)

	return &status, nil
}

func (s statusService) GetByState(ctx context.Context, state string, pagination *Pagination) (*OrderBatch, error) {
	var opts []saga.FilterOption

	if state != "" {
		opts = append(opts, saga.WithState(saga.State(state)))
	}

	if len(opts) == 0 && pagination == nil {
		return nil, NewResponseError(http.StatusBadRequest, errors.Errorf("Either a state filter or pagination must be specified"))
	}

	if pagination != nil {
		opts = append(opts, saga.WithLimit(pagination.Limit), saga.WithOffset(pagination.Offset))
	}

	snapshots, err := s.store.GetSnapshotsByFilter(ctx, opts...)

	if err != nil {
		return nil, errors.WithStack(err)
	}

	statuses := make([]OrderStatus, len(snapshots))

	for i, snapshot := range snapshots {
		statuses[i] = fromSnapshot(snapshot)
	}

	return &OrderBatch{Total: len(statuses), Items: statuses}, nil
}

func fromSnapshot(s saga.OrderSaga) OrderStatus {
	return OrderStatus{
		OrderUID:         s.OrderUID,
		CustomerUID:      s.CustomerUID,
		State:            string(s.CurrentState),
		PaymentState:     string(s.PaymentState),
		InventoryState:   string(s.InventoryState),
		FulfillmentState: string(s.FulfillmentState),
		Version:          s.StreamVersion,
		CancelReason:     s.CancelReason,
		DeliveryAttempts: s.DeliveryAttempts,
	}
}

type StatusHandler struct {
	service StatusService
	logger  log.Logger
}

func NewStatusHandler(logger log.Logger, service StatusService) *StatusHandler {
	return &StatusHandler{service: service, logger: logger}
}

// Register mounts the status routes on a chi router.
func (h *StatusHandler) Register(r chi.Router) {
	r.Get("/sagas", h.GetFilteredBy)
	r.Get("/sagas/{orderUID}", h.GetStatus)
}

func (h *StatusHandler) GetStatus(resp http.ResponseWriter, r *http.Request) {
	orderUID := chi.URLParam(r, "orderUID")

	if orderUID == "" {
		NewResponseWriterFromErrMsg("Order uid is empty", http.StatusBadRequest).write(resp, h.logger)
		return
	}

	statusResp, err := h.service.GetStatus(r.Context(), orderUID)

	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(statusResp, http.StatusOK).write(resp, h.logger)
}

func (h *StatusHandler) GetFilteredBy(resp http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var pagination *Pagination

	state := query.Get("state")

	offset, err := h.getInt(query, "offset")

	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	limit, err := h.getInt(query, "limit")

	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	if offset != nil && limit == nil {
		NewResponseWriterFromErrMsg("Query param 'limit' must be specified along with 'offset'", http.StatusBadRequest).write(resp, h.logger)
		return
	}

	if limit != nil && offset == nil {
		NewResponseWriterFromErrMsg("Query param 'offset' must be specified along with 'limit'", http.StatusBadRequest).write(resp, h.logger)
		return
	}

	if limit != nil || offset != nil {
		pagination = &Pagination{
			Offset: *offset,
			Limit:  *limit,
		}
	}

	statusesResp, err := h.service.GetByState(r.Context(), state, pagination)

	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(statusesResp, http.StatusOK).write(resp, h.logger)
}

func (h *StatusHandler) getInt(values url.Values, paramName string) (*int, error) {
	paramValue := values.Get(paramName)
	if paramValue != "" {
		intValue, err := strconv.Atoi(paramValue)
		if err != nil {
			return nil, NewResponseError(http.StatusBadRequest, errors.Errorf("Query parameter '%s' is expected to be an integer", paramName))
		}

		return &intValue, nil
	}

	return nil, nil
}

type responseWriter struct {
	body   interface{}
	status int
}

func NewResponseWriterFromError(err error) *responseWriter {
	if respErr, ok := err.(ResponseError); ok {
		return &responseWriter{
			body:   respErr,
			status: respErr.Status(),
		}
	}

	return &responseWriter{
		body:   err,
		status: http.StatusInternalServerError,
	}
}

func NewResponseWriter(body interface{}, status int) *responseWriter {
	return &responseWriter{
		body:   body,
		status: status,
	}
}

func NewResponseWriterFromErrMsg(errMsg string, status int) *responseWriter {
	return NewResponseWriterFromError(NewResponseError(status, errors.New(errMsg)))
}

func (rw *responseWriter) encode() ([]byte, error) {
	var (
		respBody []byte
		err      error
	)

	if respErr, ok := rw.body.(error); ok {
		respBody = []byte(respErr.Error())
	} else {
		respBody, err = json.Marshal(rw.body)
	}

	return respBody, err
}

func (rw *responseWriter) write(resp http.ResponseWriter, logger log.Logger) {
	respBody, err := rw.encode()
	if err != nil {
		logger.Log(log.ErrorLevel, err)
		resp.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp.Header().Set("Content-Type", "application/json")

	resp.WriteHeader(rw.status)

	if _, err = resp.Write(respBody); err != nil {
		logger.Log(log.ErrorLevel, err)
	}
}

type ResponseError struct {
	error
	status int
}

//Status returns http status code
func (e ResponseError) Status() int {
	return e.status
}

func NewResponseError(status int, err error) ResponseError {
	return ResponseError{status: status, error: err}
}
