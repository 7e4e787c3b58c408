package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/pkg/logger"
)

// DurableStore is the permanent conversation and workspace log, backed by
// two DynamoDB tables sharing the workspace_id / sort_key schema.
type DurableStore struct {
	client    *dynamodb.Client
	convTable string
	wsTable   string
	logger    *logger.Logger
}

// DurableConfig configures the durable store.
type DurableConfig struct {
	Region            string
	ConversationTable string
	WorkspaceTable    string
	Endpoint          string // non-empty only for local testing
}

// NewDurableStore builds a DynamoDB-backed durable store.
func NewDurableStore(ctx context.Context, cfg DurableConfig, log *logger.Logger) (*DurableStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &DurableStore{
		client:    client,
		convTable: cfg.ConversationTable,
		wsTable:   cfg.WorkspaceTable,
		logger:    log,
	}, nil
}

// TurnSortKey is the sort key of one conversation turn.
func TurnSortKey(workspaceID, blockID string, turnID int) string {
	return fmt.Sprintf("%s#%s#%d", workspaceID, blockID, turnID)
}

// BlockSortPrefix is the sort-key prefix covering every turn in a block.
func BlockSortPrefix(workspaceID, blockID string) string {
	return fmt.Sprintf("%s#%s#", workspaceID, blockID)
}

// ProjectSortKey is the sort key of one workspace project.
func ProjectSortKey(workspaceID, projectID string) string {
	return fmt.Sprintf("%s#%s", workspaceID, projectID)
}

// PutTurn stores one completed conversation turn.
func (d *DurableStore) PutTurn(ctx context.Context, turn *model.ConversationTurn) error {
	turn.SortKey = TurnSortKey(turn.WorkspaceID, turn.BlockID, turn.TurnID)

	item, err := attributevalue.MarshalMap(turn)
	if err != nil {
		return fmt.Errorf("encoding turn %s: %w", turn.SortKey, err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.convTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("storing turn %s: %w", turn.SortKey, err)
	}
	return nil
}

// History returns every turn in a block, ordered by turn id.
func (d *DurableStore) History(ctx context.Context, workspaceID, blockID string) ([]model.ConversationTurn, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.convTable),
		KeyConditionExpression: aws.String("workspace_id = :ws AND begins_with(sort_key, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ws":     &types.AttributeValueMemberS{Value: workspaceID},
			":prefix": &types.AttributeValueMemberS{Value: BlockSortPrefix(workspaceID, blockID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying history for %s/%s: %w", workspaceID, blockID, err)
	}

	turns := make([]model.ConversationTurn, 0, len(out.Items))
	for _, item := range out.Items {
		var turn model.ConversationTurn
		if err := attributevalue.UnmarshalMap(item, &turn); err != nil {
			d.logger.Warn("skipping undecodable turn item",
				zap.String("workspace_id", workspaceID), zap.String("block_id", blockID))
			continue
		}
		turns = append(turns, turn)
	}

	sort.Slice(turns, func(i, j int) bool { return turns[i].TurnID < turns[j].TurnID })
	return turns, nil
}

// DeleteBlockTurns removes every turn in a block and returns the count.
func (d *DurableStore) DeleteBlockTurns(ctx context.Context, workspaceID, blockID string) (int, error) {
	turns, err := d.History(ctx, workspaceID, blockID)
	if err != nil {
		return 0, err
	}

	// BatchWriteItem accepts at most 25 requests per call.
	for start := 0; start < len(turns); start += 25 {
		end := start + 25
		if end > len(turns) {
			end = len(turns)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, turn := range turns[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"workspace_id": &types.AttributeValueMemberS{Value: turn.WorkspaceID},
						"sort_key":     &types.AttributeValueMemberS{Value: turn.SortKey},
					},
				},
			})
		}

		_, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{d.convTable: requests},
		})
		if err != nil {
			return 0, fmt.Errorf("deleting turns for %s/%s: %w", workspaceID, blockID, err)
		}
	}

	return len(turns), nil
}

// PutProject saves a workspace project. Floats in the flowchart payload are
// stored as exact decimals.
func (d *DurableStore) PutProject(ctx context.Context, project *model.WorkspaceProject) error {
	flowchart, err := marshalFlowchart(anyMap(project.FlowchartData))
	if err != nil {
		return fmt.Errorf("encoding flowchart for %s: %w", project.ProjectID, err)
	}

	item := map[string]types.AttributeValue{
		"workspace_id":   &types.AttributeValueMemberS{Value: project.WorkspaceID},
		"sort_key":       &types.AttributeValueMemberS{Value: ProjectSortKey(project.WorkspaceID, project.ProjectID)},
		"project_id":     &types.AttributeValueMemberS{Value: project.ProjectID},
		"flowchart_data": flowchart,
		"updated_at":     &types.AttributeValueMemberS{Value: project.UpdatedAt.UTC().Format(time.RFC3339)},
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.wsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("storing project %s: %w", project.ProjectID, err)
	}
	return nil
}

// NextProjectID derives "project-{max+1}" from the workspace's existing
// projects.
func (d *DurableStore) NextProjectID(ctx context.Context, workspaceID string) (string, error) {
	out, err := d.queryWorkspace(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	maxID := 0
	for _, item := range out {
		pid, ok := item["project_id"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		parts := strings.Split(pid.Value, "-")
		if n, convErr := strconv.Atoi(parts[len(parts)-1]); convErr == nil && n > maxID {
			maxID = n
		}
	}
	return fmt.Sprintf("project-%d", maxID+1), nil
}

// WorkspaceData loads every project in a workspace, converting stored
// decimals back to floats.
func (d *DurableStore) WorkspaceData(ctx context.Context, workspaceID string) (*model.WorkspaceData, error) {
	items, err := d.queryWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	data := &model.WorkspaceData{Projects: []model.ProjectData{}}
	for _, item := range items {
		pid, ok := item["project_id"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		raw, ok := item["flowchart_data"]
		if !ok {
			continue
		}
		flowchart, err := unmarshalFlowchart(raw)
		if err != nil {
			d.logger.Warn("skipping undecodable flowchart",
				zap.String("workspace_id", workspaceID), zap.String("project_id", pid.Value))
			continue
		}
		m, _ := flowchart.(map[string]any)
		data.Projects = append(data.Projects, model.ProjectData{ID: pid.Value, FlowchartData: m})
	}
	return data, nil
}

// ChatHistory loads every conversation turn in a workspace, grouped per
// block and sorted by turn id.
func (d *DurableStore) ChatHistory(ctx context.Context, workspaceID string) ([]model.BlockChat, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.convTable),
		KeyConditionExpression: aws.String("workspace_id = :ws"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ws": &types.AttributeValueMemberS{Value: workspaceID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying chat history for %s: %w", workspaceID, err)
	}

	blocks := make(map[string][]model.ChatMessage)
	for _, item := range out.Items {
		var turn model.ConversationTurn
		if err := attributevalue.UnmarshalMap(item, &turn); err != nil {
			continue
		}
		for _, msg := range turn.Messages {
			blocks[turn.BlockID] = append(blocks[turn.BlockID], model.ChatMessage{
				ID:        turn.TurnID,
				Text:      msg.Content,
				IsUser:    msg.Role == model.RoleUser,
				Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
			})
		}
	}

	blockIDs := make([]string, 0, len(blocks))
	for id := range blocks {
		blockIDs = append(blockIDs, id)
	}
	sort.Strings(blockIDs)

	history := make([]model.BlockChat, 0, len(blocks))
	for _, id := range blockIDs {
		msgs := blocks[id]
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
		history = append(history, model.BlockChat{BlockID: id, Messages: msgs})
	}
	return history, nil
}

func (d *DurableStore) queryWorkspace(ctx context.Context, workspaceID string) ([]map[string]types.AttributeValue, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.wsTable),
		KeyConditionExpression: aws.String("workspace_id = :ws"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ws": &types.AttributeValueMemberS{Value: workspaceID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying workspace %s: %w", workspaceID, err)
	}
	return out.Items, nil
}

func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
