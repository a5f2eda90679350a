package grpcclient

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/catdog/internal/classifier"
	"github.com/example/catdog/internal/imageprocessor"
)

type predictFunc func(ctx context.Context, tensor *imageprocessor.Tensor) (float64, error)

func newTestServer(t *testing.T, predict predictFunc) *grpc.ClientConn {
	t.Helper()

	desc := grpc.ServiceDesc{
		ServiceName: "catdog.v1.Classifier",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Predict",
			Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &wrapperspb.BytesValue{}
				if err := dec(in); err != nil {
					return nil, err
				}
				p, err := predict(ctx, DecodeTensor(in.GetValue()))
				if err != nil {
					return nil, err
				}
				return wrapperspb.Double(p), nil
			},
		}},
	}

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&desc, struct{}{})
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }
	_, conn, err := DialClassifier(context.Background(), "bufnet", zap.NewNop(), grpc.WithContextDialer(dialer))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sampleTensor() *imageprocessor.Tensor {
	data := make([]float32, imageprocessor.Height*imageprocessor.Width*imageprocessor.Channels)
	for i := range data {
		data[i] = float32(i%256) / 255.0
	}
	return &imageprocessor.Tensor{Shape: [4]int{1, 224, 224, 3}, Data: data}
}

func TestPredictSendsTensorAndReturnsProbability(t *testing.T) {
	sent := sampleTensor()
	var received *imageprocessor.Tensor
	conn := newTestServer(t, func(_ context.Context, tensor *imageprocessor.Tensor) (float64, error) {
		received = tensor
		return 0.83, nil
	})

	p, err := NewClassifier(conn, zap.NewNop()).Predict(context.Background(), sent)

	require.NoError(t, err)
	assert.Equal(t, 0.83, p)
	require.NotNil(t, received)
	assert.Equal(t, sent.Data, received.Data)
}

func TestPredictPropagatesServerError(t *testing.T) {
	conn := newTestServer(t, func(context.Context, *imageprocessor.Tensor) (float64, error) {
		return 0, status.Error(codes.Internal, "model crashed")
	})

	_, err := NewClassifier(conn, zap.NewNop()).Predict(context.Background(), sampleTensor())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestPredictRejectsOutOfRangeProbability(t *testing.T) {
	conn := newTestServer(t, func(context.Context, *imageprocessor.Tensor) (float64, error) {
		return 1.5, nil
	})

	_, err := NewClassifier(conn, zap.NewNop()).Predict(context.Background(), sampleTensor())

	assert.ErrorIs(t, err, classifier.ErrInvalidProbability)
}

func TestTensorEncodingRoundTrip(t *testing.T) {
	tensor := sampleTensor()
	assert.Equal(t, tensor.Data, DecodeTensor(EncodeTensor(tensor)).Data)
}
