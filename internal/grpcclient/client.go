package grpcclient

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/catdog/internal/classifier"
	"github.com/example/catdog/internal/imageprocessor"
	"github.com/example/catdog/internal/logging"
)

// PredictMethod is the full name of the unary inference RPC. The request is a
// BytesValue holding the NHWC float32 tensor little-endian, the reply a
// DoubleValue with the dog probability.
const PredictMethod = "/catdog.v1.Classifier/Predict"

// DialClassifier returns a ready-to-use classifier backed by a remote inference server.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (classifier.Classifier, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClassifier(conn, logger), conn, nil
}

// NewClassifier wraps an existing connection.
func NewClassifier(conn grpc.ClientConnInterface, logger *zap.Logger) classifier.Classifier {
	return &grpcClassifier{conn: conn, logger: logger}
}

type grpcClassifier struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (g *grpcClassifier) Predict(ctx context.Context, tensor *imageprocessor.Tensor) (float64, error) {
	req := wrapperspb.Bytes(EncodeTensor(tensor))
	resp := &wrapperspb.DoubleValue{}
	if err := g.conn.Invoke(ctx, PredictMethod, req, resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", "", err)
		g.logger.Error("classifier call failed", zap.Error(wrapped))
		return 0, wrapped
	}
	return classifier.CheckProbability(resp.GetValue())
}

// EncodeTensor serialises tensor values as little-endian float32.
func EncodeTensor(tensor *imageprocessor.Tensor) []byte {
	buf := make([]byte, 4*len(tensor.Data))
	for i, v := range tensor.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeTensor is the inverse of EncodeTensor for an NHWC model input.
func DecodeTensor(raw []byte) *imageprocessor.Tensor {
	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return &imageprocessor.Tensor{
		Shape: [4]int{1, imageprocessor.Height, imageprocessor.Width, imageprocessor.Channels},
		Data:  data,
	}
}
