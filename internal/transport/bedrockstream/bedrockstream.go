// Package bedrockstream connects protocol sessions to Amazon Bedrock's
// bidirectional streaming API.
package bedrockstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/ent0n29/novagate/internal/nova"
)

const DefaultModelID = "amazon.nova-sonic-v1:0"

type Config struct {
	Region          string
	ModelID         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Transport opens one bidirectional model stream per session.
type Transport struct {
	client  *bedrockruntime.Client
	modelID string
}

func New(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	} else {
		// Default credential chain: env, shared config, IAM role.
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrockstream: load AWS config: %w", err)
	}

	return &Transport{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: cfg.ModelID,
	}, nil
}

func (t *Transport) Open(ctx context.Context, sessionID string, outbound nova.OutboundSource) (nova.InboundStream, error) {
	out, err := t.client.InvokeModelWithBidirectionalStream(ctx, &bedrockruntime.InvokeModelWithBidirectionalStreamInput{
		ModelId: aws.String(t.modelID),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrockstream: invoke model: %w", err)
	}
	es := out.GetStream()

	go func() {
		for {
			frame, err := outbound.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					log.Printf("bedrockstream: session %s outbound source: %v", sessionID, err)
				}
				break
			}
			sendErr := es.Send(ctx, &types.InvokeModelWithBidirectionalStreamInputMemberChunk{
				Value: types.BidirectionalInputPayloadPart{Bytes: frame},
			})
			if sendErr != nil {
				log.Printf("bedrockstream: session %s send: %v", sessionID, sendErr)
				break
			}
		}
		// Closing the input side lets the model finish and end the output
		// stream on its own.
		if err := es.Close(); err != nil {
			log.Printf("bedrockstream: session %s close input stream: %v", sessionID, err)
		}
	}()

	return &inboundStream{es: es}, nil
}

type inboundStream struct {
	es *bedrockruntime.InvokeModelWithBidirectionalStreamEventStream
}

func (s *inboundStream) Recv() ([]byte, error) {
	for {
		ev, ok := <-s.es.Events()
		if !ok {
			if err := s.es.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		chunk, ok := ev.(*types.InvokeModelWithBidirectionalStreamOutputMemberChunk)
		if !ok {
			log.Printf("bedrockstream: skipping unexpected event type %T", ev)
			continue
		}
		return chunk.Value.Bytes, nil
	}
}

func (s *inboundStream) Close() error {
	return s.es.Close()
}
