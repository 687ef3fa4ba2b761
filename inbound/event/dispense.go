package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"ration-kiosk/common"
	"ration-kiosk/common/constant"
	"ration-kiosk/common/otel"
	"ration-kiosk/dispense"
	"ration-kiosk/model"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/viper"
	"golang.org/x/text/message"
)

type DispenseEvent struct {
	Cfg               *viper.Viper
	Publisher         jetstream.Publisher
	QuantityFormatter *message.Printer

	Timeout time.Duration
}

func (in DispenseEvent) CompletedHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.DispenseCompletedEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "dispense completed event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "DispenseEvent.CompletedHandler")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	reqAttr := slog.Any(constant.LogFieldPayload, string(msg))

	slog.InfoContext(ctx, "dispense completed event receive request", reqAttr, traceIdAttr)

	sendEmailReq := model.SendEmailEventMessage{
		To:      in.Cfg.GetString("email.operator"),
		Subject: fmt.Sprintf("Dispense Receipt RSHOP-%d", req.TransactionId),
		Body:    in.buildReceiptEmailBody(req),
	}

	err = common.PublishMessage(ctx, in.Publisher, constant.SubjectSendEmail, sendEmailReq)
	if err != nil {
		slog.ErrorContext(ctx, "dispense completed event publish error", slog.Any(constant.LogFieldErr, err), reqAttr, traceIdAttr)
		return err
	}

	slog.DebugContext(ctx, "dispense receipt published successfully", reqAttr, traceIdAttr)

	return nil
}

func (in DispenseEvent) FailedHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.DispenseFailedEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "dispense failed event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	reqAttr := slog.Any(constant.LogFieldPayload, string(msg))

	// Only hardware-level failures warrant an ops alert; rejections
	// and device-reported jams are visible at the kiosk itself.
	if req.Reason != dispense.ReasonLinkFault && req.Reason != dispense.ReasonTimeout {
		slog.DebugContext(ctx, "dispense failed event skipped", reqAttr, traceIdAttr)
		return nil
	}

	sendEmailReq := model.SendEmailEventMessage{
		To:      in.Cfg.GetString("email.operator"),
		Subject: "Dispenser Fault Alert",
		Body:    in.buildFaultEmailBody(req),
	}

	err = common.PublishMessage(ctx, in.Publisher, constant.SubjectSendEmail, sendEmailReq)
	if err != nil {
		slog.ErrorContext(ctx, "dispense failed event publish error", slog.Any(constant.LogFieldErr, err), reqAttr, traceIdAttr)
		return err
	}

	return nil
}

func (in DispenseEvent) buildReceiptEmailBody(req model.DispenseCompletedEventMessage) string {
	quantityFormatted := in.QuantityFormatter.Sprintf("%d", req.Quantity)

	return fmt.Sprintf(constant.EmailDispenseReceiptTemplate,
		req.TransactionId,
		req.FamilyId,
		req.MemberId,
		req.Item,
		quantityFormatted,
		req.DispensedAt,
	)
}

func (in DispenseEvent) buildFaultEmailBody(req model.DispenseFailedEventMessage) string {
	quantityFormatted := in.QuantityFormatter.Sprintf("%d", req.Quantity)

	return fmt.Sprintf(constant.EmailDispenseFaultTemplate,
		req.RequestId,
		req.Item,
		quantityFormatted,
		req.Reason,
		req.FailedAt,
	)
}
