package workerruntime

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bifrostlabs/bifrost/internal/pkg/httpclient"
	"github.com/bifrostlabs/bifrost/internal/pkg/secrets"
	"github.com/dop251/goja"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jlaffaye/ftp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
)

// bindHostFunctions exposes a narrow set of data-provider helpers to the
// sandboxed workflow function, per §3's "workflow script as a data
// provider" role: s3, mongo, mysql, ftp, and a pooled/circuit-broken
// http client for arbitrary API calls. Any credential a script passes in
// is registered with reg before the call returns so C6's post-run
// redaction pass catches it even if the script logs or returns it.
func bindHostFunctions(vm *goja.Runtime, ctx context.Context, reg *secrets.Registry) {
	s3obj := vm.NewObject()
	_ = s3obj.Set("getObject", func(call goja.FunctionCall) goja.Value {
		bucket := call.Argument(0).String()
		key := call.Argument(1).String()
		accessKeyID := call.Argument(2).String()
		secretKey := call.Argument(3).String()
		reg.Register(secretKey)

		body, err := s3GetObject(ctx, bucket, key, accessKeyID, secretKey)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(string(body))
	})
	_ = vm.Set("s3", s3obj)

	mongoObj := vm.NewObject()
	_ = mongoObj.Set("find", func(call goja.FunctionCall) goja.Value {
		uri := call.Argument(0).String()
		database := call.Argument(1).String()
		collection := call.Argument(2).String()
		filterJSON := call.Argument(3).Export()
		reg.Register(uri)

		docs, err := mongoFind(ctx, uri, database, collection, filterJSON)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(docs)
	})
	_ = vm.Set("mongo", mongoObj)

	mysqlObj := vm.NewObject()
	_ = mysqlObj.Set("query", func(call goja.FunctionCall) goja.Value {
		dsn := call.Argument(0).String()
		query := call.Argument(1).String()
		reg.Register(dsn)

		rows, err := mysqlQuery(ctx, dsn, query)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(rows)
	})
	_ = vm.Set("mysql", mysqlObj)

	ftpObj := vm.NewObject()
	_ = ftpObj.Set("list", func(call goja.FunctionCall) goja.Value {
		addr := call.Argument(0).String()
		user := call.Argument(1).String()
		pass := call.Argument(2).String()
		dir := call.Argument(3).String()
		reg.Register(pass)

		entries, err := ftpList(addr, user, pass, dir)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(entries)
	})
	_ = vm.Set("ftp", ftpObj)

	httpObj := vm.NewObject()
	_ = httpObj.Set("fetch", func(call goja.FunctionCall) goja.Value {
		method := call.Argument(0).String()
		url := call.Argument(1).String()
		bodyStr := call.Argument(2).String()
		authHeader := call.Argument(3).String()
		if authHeader != "" {
			reg.Register(authHeader)
		}

		status, respBody, err := httpFetch(ctx, method, url, bodyStr, authHeader)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		result := vm.NewObject()
		_ = result.Set("status", status)
		_ = result.Set("body", respBody)
		return result
	})
	_ = vm.Set("http", httpObj)
}

func s3GetObject(ctx context.Context, bucket, key, accessKeyID, secretKey string) ([]byte, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("s3: getObject failed: %w", err)
	}
	defer out.Body.Close()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := out.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return buf, nil
}

func mongoFind(ctx context.Context, uri, database, collection string, filter interface{}) ([]map[string]interface{}, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, mongooptions.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect failed: %w", err)
	}
	defer client.Disconnect(connectCtx)

	bsonFilter, ok := filter.(map[string]interface{})
	if !ok {
		bsonFilter = map[string]interface{}{}
	}

	cursor, err := client.Database(database).Collection(collection).Find(ctx, bson.M(bsonFilter))
	if err != nil {
		return nil, fmt.Errorf("mongo: find failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []map[string]interface{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("mongo: cursor decode failed: %w", err)
	}
	return results, nil
}

func mysqlQuery(ctx context.Context, dsn, query string) ([]map[string]interface{}, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open failed: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("mysql: query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		scanTargets := make([]interface{}, len(cols))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// httpFetch drives external API calls from within a sandboxed workflow
// function through the pooled, per-host circuit-breaking client so a
// flaky downstream dependency trips open instead of starving the
// worker's goroutine on repeated dials.
func httpFetch(ctx context.Context, method, url, body, authHeader string) (int, string, error) {
	resp, err := httpclient.Default().NewRequest(method, url).
		Header("Authorization", authHeader).
		Body(strings.NewReader(body)).
		Do(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("http: %s %s failed: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("http: failed to read response body: %w", err)
	}
	return resp.StatusCode, string(respBody), nil
}

func ftpList(addr, user, pass, dir string) ([]string, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("ftp: dial failed: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp: login failed: %w", err)
	}

	entries, err := conn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("ftp: list failed: %w", err)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}
