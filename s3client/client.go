// Package s3client downloads corpora and uploads labelling results. The session is refreshed
// in the background whenever a request fails, so rotated credentials are picked up.
package s3client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"text2phenotype.com/ner/logger"
)

const URLScheme = "s3://"

var ErrNoSession = errors.New("no S3 session")

type EnvironmentConfig struct {
	BucketName  string `envconfig:"MDL_COMN_STORAGE_CONTAINER_NAME" required:"true"`
	T2PEnv      string `envconfig:"T2P_ENV" required:"true"`
	Region      string `envconfig:"MDL_COMN_AWS_REGION_NAME" required:"true"`
	AwsEndpoint string `envconfig:"MDL_COMN_AWS_ENDPOINT_URL" default:""`
	AccessKeyID string `envconfig:"MDL_COMN_AWS_ACCESS_ID" default:""`
	AccessKey   string `envconfig:"MDL_COMN_AWS_ACCESS_KEY" default:""`
	MaxRetries  int    `envconfig:"NER_S3_MAX_RETRIES" default:"4"`
}

type Client struct {
	holder *sessionHolder
	env    EnvironmentConfig
}

type sessionHolder struct {
	curr      *session.Session
	requestCh <-chan *session.Session
	errorCh   chan<- error
	closeCh   chan<- struct{}
}

var clientLogger = logger.NewLogger("S3Client")
var sdkLogger = logger.NewLogger("S3-SDK")

func New() (*Client, error) {
	var env EnvironmentConfig
	if err := envconfig.Process("", &env); err != nil {
		clientLogger.Err(err).Caller().Msg("Failed to get proper variables from environment")
		return nil, err
	}
	sessionCh := make(chan *session.Session)
	errorCh := make(chan error)
	closeCh := make(chan struct{}, 1)
	client := Client{
		env: env,
		holder: &sessionHolder{
			requestCh: sessionCh,
			errorCh:   errorCh,
			closeCh:   closeCh,
		},
	}
	if err := client.acquireNewSession(); err != nil {
		return nil, err
	}
	go keepSessionRefreshed(&client, sessionCh, errorCh, closeCh)
	return &client, nil
}

// SplitURL turns "s3://bucket/some/key" into bucket and key. Plain keys have no bucket.
func SplitURL(url string) (bucket, key string) {
	if !strings.HasPrefix(url, URLScheme) {
		return "", url
	}
	rest := strings.TrimPrefix(url, URLScheme)
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[:i], rest[i+1:]
	}
	return rest, ""
}

func (client Client) bucket(bucket string) string {
	if bucket == "" {
		return client.env.BucketName
	}
	return bucket
}

// Upload stores data under key, which may be a full s3:// URL.
func (client Client) Upload(ctx context.Context, data string, key string) (*s3manager.UploadOutput, error) {
	bucket, objectKey := SplitURL(key)
	params := &s3manager.UploadInput{
		Bucket:      aws.String(client.bucket(bucket)),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	var output *s3manager.UploadOutput
	err := client.withSession(func(sess *session.Session) (err error) {
		output, err = client.upload(ctx, sess, params)
		return err
	})
	return output, err
}

// Download reads the object under key, which may be a full s3:// URL.
func (client Client) Download(ctx context.Context, key string) ([]byte, error) {
	bucket, objectKey := SplitURL(key)
	params := &s3.GetObjectInput{
		Bucket: aws.String(client.bucket(bucket)),
		Key:    aws.String(objectKey),
	}
	var data []byte
	err := client.withSession(func(sess *session.Session) (err error) {
		data, err = client.download(ctx, sess, params)
		return err
	})
	return data, err
}

// withSession runs call, and once more on a refreshed session if it fails.
func (client Client) withSession(call func(sess *session.Session) error) error {
	sess, err := client.session()
	if err != nil {
		return err
	}
	if err = call(sess); err == nil {
		return nil
	}
	if sess, err = client.tryRefreshingSession(err); err != nil {
		return err
	}
	return call(sess)
}

func (client Client) Close() {
	client.holder.closeCh <- struct{}{}
}

func objectLoggers(bucket, key *string) (zerolog.Logger, zerolog.Logger) {
	return clientLogger.With().Str("key", *key).Str("bucket", *bucket).Logger(),
		sdkLogger.With().Str("key", *key).Str("bucket", *bucket).Logger()
}

func (client Client) upload(ctx context.Context, sess *session.Session, params *s3manager.UploadInput) (*s3manager.UploadOutput, error) {
	nerLogger, sdkLog := objectLoggers(params.Bucket, params.Key)
	uploader := s3manager.NewUploader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	nerLogger.Debug().Msg("Uploading the file")
	return uploader.UploadWithContext(ctx, params)
}

func (client Client) download(ctx context.Context, sess *session.Session, params *s3.GetObjectInput) ([]byte, error) {
	nerLogger, sdkLog := objectLoggers(params.Bucket, params.Key)
	downloader := s3manager.NewDownloader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	buf := aws.NewWriteAtBuffer([]byte{})

	nerLogger.Debug().Msg("Downloading file")
	size, err := downloader.DownloadWithContext(ctx, buf, params)
	if err != nil {
		nerLogger.Error().Err(err).Msg("Failed to download file")
		return nil, err
	}
	nerLogger.Debug().Int64("bytes", size).Msg("Downloaded file")
	return buf.Bytes(), nil
}

func keepSessionRefreshed(client *Client, sessionCh chan<- *session.Session, errorCh <-chan error, closeCh <-chan struct{}) {
	for {
		select {
		case sessionCh <- client.holder.curr:
			continue
		default:
		}
		select {
		case sessionCh <- client.holder.curr:
		case err := <-errorCh:
			clientLogger.Error().Err(err).Msg("Caught error while using S3 session, trying to refresh it")
			if err = client.acquireNewSession(); err != nil {
				clientLogger.Error().Err(err).Msg("Caught error while refreshing S3 session")
				continue
			}
			clientLogger.Info().Msg("Successfully refreshed session")
		case <-closeCh:
			clientLogger.Info().Msg("Closing client")
			return
		}
	}
}

func (client Client) tryRefreshingSession(err error) (*session.Session, error) {
	var sess *session.Session
	select {
	case client.holder.errorCh <- err:
		sess = <-client.holder.requestCh
	case sess = <-client.holder.requestCh:
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: refresh failed after %v", ErrNoSession, err)
	}
	return sess, nil
}

func (client Client) session() (*session.Session, error) {
	sess := <-client.holder.requestCh
	if sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (client Client) instanceConfig() *aws.Config {
	return aws.NewConfig().
		WithRegion(client.env.Region).
		WithMaxRetries(client.env.MaxRetries).
		WithLogLevel(aws.LogDebug)
}

func (client Client) staticConfig() (*aws.Config, error) {
	creds := credentials.NewStaticCredentials(client.env.AccessKeyID, client.env.AccessKey, "")
	if _, err := creds.Get(); err != nil {
		return nil, fmt.Errorf("credentials from environment: %w", err)
	}
	cfg := client.instanceConfig().WithCredentials(creds)
	if client.env.T2PEnv == "dev" && client.env.AwsEndpoint != "" {
		cfg = cfg.WithEndpoint(client.env.AwsEndpoint).WithS3ForcePathStyle(true)
	}
	return cfg, nil
}

// verifiedSession opens a session and checks its credentials with STS.
func verifiedSession(cfg *aws.Config) (*session.Session, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err != nil {
		return nil, err
	}
	return sess, nil
}

// acquireNewSession prefers instance credentials and falls back to the environment ones.
func (client *Client) acquireNewSession() error {
	sess, err := verifiedSession(client.instanceConfig())
	if err == nil {
		client.holder.curr = sess
		clientLogger.Info().Msg("S3 session successfully initialized using EC2")
		return nil
	}
	clientLogger.Info().Err(err).Msg("Could not initialize S3 session using EC2, trying env credentials")
	cfg, err := client.staticConfig()
	if err == nil {
		sess, err = verifiedSession(cfg)
	}
	if err != nil {
		client.holder.curr = nil
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	client.holder.curr = sess
	clientLogger.Info().Msg("S3 session successfully initialized using env credentials")
	return nil
}

type s3Logger struct {
	nerLogger zerolog.Logger
}

func getLogger(nerLogger zerolog.Logger) *s3Logger {
	return &s3Logger{nerLogger}
}

func (logger *s3Logger) Log(v ...interface{}) {
	logger.nerLogger.Debug().Msg(fmt.Sprint(v...))
}
