package iso8583

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/alovak/cardflow-authorizer/internal/pan"
	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"github.com/moov-io/iso8583-connection/server"
	"github.com/moov-io/iso8583/field"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

type TransactionProcessor interface {
	ProcessTransaction(ctx context.Context, req models.TransactionRequest) error
}

// Server answers 0100 authorization requests with 0110 responses.
type Server struct {
	Addr string

	logger    *slog.Logger
	processor TransactionProcessor
	server    *server.Server
	timeout   time.Duration
}

func NewServer(logger *slog.Logger, addr string, processor TransactionProcessor) *Server {
	return &Server{
		Addr:      addr,
		logger:    logger.With(slog.String("component", "iso8583")),
		processor: processor,
		timeout:   5 * time.Second,
	}
}

func (s *Server) Start() error {
	srv := server.New(Spec, readMessageLength, writeMessageLength, connection.InboundMessageHandler(s.handleMessage))

	if err := srv.Start(s.Addr); err != nil {
		return fmt.Errorf("starting iso8583 server: %w", err)
	}

	s.Addr = srv.Addr
	s.server = srv
	s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))

	return nil
}

func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.server.Close()
	return nil
}

func (s *Server) handleMessage(c *connection.Connection, message *iso8583.Message) {
	mti, err := message.GetMTI()
	if err != nil {
		s.logger.Error("reading mti", slog.Any("err", err))
		return
	}
	replyMTI, ok := responseMTI(mti)
	if !ok {
		// responses and advices get no reply
		s.logger.Error("unexpected message", slog.String("mti", mti))
		return
	}

	req := AuthorizationRequest{}
	code := ResponseFormatError
	if err := message.Unmarshal(&req); err != nil {
		s.logger.Error("unmarshaling request", slog.Any("err", err))
	} else if mti != "0100" {
		s.logger.Error("unsupported message", slog.String("mti", mti))
	} else {
		code = s.authorize(req)
	}

	resp := AuthorizationResponse{
		ResponseCode: field.NewStringValue(code),
	}
	if req.STAN != nil {
		resp.STAN = field.NewStringValue(req.STAN.Value())
	}

	response := iso8583.NewMessage(Spec)
	response.MTI(replyMTI)
	if err := response.Marshal(&resp); err != nil {
		s.logger.Error("marshaling response", slog.Any("err", err))
		return
	}

	if err := c.Reply(response); err != nil {
		s.logger.Error("sending response", slog.Any("err", err))
	}
}

func (s *Server) authorize(req AuthorizationRequest) string {
	if req.CardNumber == nil || req.Amount == nil || req.CardPassword == nil {
		return ResponseFormatError
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.processor.ProcessTransaction(ctx, models.TransactionRequest{
		CardNumber: req.CardNumber.Value(),
		Password:   req.CardPassword.Value(),
		// DE4 carries minor units
		Amount: decimal.New(int64(req.Amount.Value()), -2),
	})

	code := responseCode(err)
	s.logger.Info("authorization",
		slog.String("card", pan.Mask(req.CardNumber.Value())),
		slog.String("response_code", code),
	)

	return code
}

// responseMTI turns a request MTI into its response MTI, e.g. 0800 into 0810.
func responseMTI(mti string) (string, bool) {
	if len(mti) != 4 || mti[2] != '0' {
		return "", false
	}
	return mti[:2] + "1" + mti[3:], true
}

func responseCode(err error) string {
	switch {
	case err == nil:
		return ResponseApproved
	case errors.Is(err, models.ErrInvalidAmount):
		return ResponseFormatError
	case errors.Is(err, models.ErrCardNotFound):
		return ResponseCardNotFound
	case errors.Is(err, models.ErrInvalidPassword):
		return ResponseInvalidPassword
	case errors.Is(err, models.ErrInsufficientBalance):
		return ResponseInsufficientBalance
	case errors.Is(err, models.ErrRetriesExhausted):
		return ResponseIssuerUnavailable
	default:
		return ResponseSystemError
	}
}
