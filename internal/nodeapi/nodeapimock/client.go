// Package nodeapimock holds a gomock-generated-style mock of nodeapi.Client,
// used by tests that need to control RPC responses without a real node.
// Hand-maintained in the shape mockgen would produce (mockgen isn't run as
// part of this build), covering only the methods exercised by tests.
package nodeapimock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

// MockClient is a mock of the nodeapi.Client interface.
type MockClient struct {
	ctrl     *gomock.Controller
	recorder *MockClientMockRecorder
}

// MockClientMockRecorder is the mock recorder for MockClient.
type MockClientMockRecorder struct {
	mock *MockClient
}

// NewMockClient creates a new mock instance.
func NewMockClient(ctrl *gomock.Controller) *MockClient {
	mock := &MockClient{ctrl: ctrl}
	mock.recorder = &MockClientMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockClient) EXPECT() *MockClientMockRecorder {
	return m.recorder
}

// GetModuleSource mocks base method.
func (m *MockClient) GetModuleSource(ctx context.Context, ref string, id nodeapi.BlockIdentifier) (nodeapi.Module, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetModuleSource", ctx, ref, id)
	module, _ := ret[0].(nodeapi.Module)
	err, _ := ret[1].(error)
	return module, err
}

// GetModuleSource indicates an expected call.
func (mr *MockClientMockRecorder) GetModuleSource(ctx, ref, id any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetModuleSource", reflect.TypeOf((*MockClient)(nil).GetModuleSource), ctx, ref, id)
}

// GetConsensusInfo mocks base method.
func (m *MockClient) GetConsensusInfo(ctx context.Context) (nodeapi.ConsensusInfo, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetConsensusInfo", ctx)
	info, _ := ret[0].(nodeapi.ConsensusInfo)
	err, _ := ret[1].(error)
	return info, err
}

// GetConsensusInfo indicates an expected call.
func (mr *MockClientMockRecorder) GetConsensusInfo(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetConsensusInfo", reflect.TypeOf((*MockClient)(nil).GetConsensusInfo), ctx)
}

// Close mocks base method.
func (m *MockClient) Close() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close")
	err, _ := ret[0].(error)
	return err
}

// Close indicates an expected call.
func (mr *MockClientMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockClient)(nil).Close))
}

var _ nodeapi.Client = (*MockClient)(nil)

// The methods below are not mocked (no test in this repo needs to stub
// them yet); they panic if called instead of silently returning a zero
// value, so a test that reaches one fails loudly rather than passing on
// bad data.

func (m *MockClient) GetFinalizedBlocks(context.Context, nodeapi.AbsoluteHeight) (nodeapi.Stream[nodeapi.FinalizedBlockInfo], error) {
	panic("not mocked")
}
func (m *MockClient) GetBlockInfo(context.Context, nodeapi.BlockIdentifier) (nodeapi.BlockInfo, error) {
	panic("not mocked")
}
func (m *MockClient) GetBlockCertificates(context.Context, nodeapi.BlockIdentifier) (nodeapi.BlockCertificates, error) {
	panic("not mocked")
}
func (m *MockClient) GetBlockChainParameters(context.Context, nodeapi.BlockIdentifier) (nodeapi.ChainParameters, error) {
	panic("not mocked")
}
func (m *MockClient) GetBlockItems(context.Context, nodeapi.BlockIdentifier) ([][]byte, error) {
	panic("not mocked")
}
func (m *MockClient) GetBlockTransactionEvents(context.Context, nodeapi.BlockIdentifier) (nodeapi.Stream[nodeapi.BlockItemSummary], error) {
	panic("not mocked")
}
func (m *MockClient) GetBlockSpecialEvents(context.Context, nodeapi.BlockIdentifier) (nodeapi.Stream[nodeapi.SpecialEvent], error) {
	panic("not mocked")
}
func (m *MockClient) GetTokenomicsInfo(context.Context, nodeapi.BlockIdentifier) (nodeapi.Tokenomics, error) {
	panic("not mocked")
}
func (m *MockClient) GetBakerList(context.Context, nodeapi.BlockIdentifier) (nodeapi.Stream[uint64], error) {
	panic("not mocked")
}
func (m *MockClient) GetAccountInfo(context.Context, string, nodeapi.BlockIdentifier) (nodeapi.AccountInfo, error) {
	panic("not mocked")
}
func (m *MockClient) GetAccountList(context.Context, nodeapi.BlockIdentifier) (nodeapi.Stream[string], error) {
	panic("not mocked")
}
func (m *MockClient) GetBakersRewardPeriod(context.Context, nodeapi.BlockIdentifier) (nodeapi.Stream[nodeapi.BakerRewardPeriodInfo], error) {
	panic("not mocked")
}
func (m *MockClient) GetPassiveDelegatorsRewardPeriod(context.Context, nodeapi.BlockIdentifier) (nodeapi.Stream[nodeapi.PassiveDelegatorRewardPeriodInfo], error) {
	panic("not mocked")
}
func (m *MockClient) GetPoolDelegatorsRewardPeriod(context.Context, uint64, nodeapi.BlockIdentifier) (nodeapi.Stream[nodeapi.PassiveDelegatorRewardPeriodInfo], error) {
	panic("not mocked")
}
func (m *MockClient) GetPoolInfo(context.Context, uint64, nodeapi.BlockIdentifier) (nodeapi.BakerPoolInfo, error) {
	panic("not mocked")
}
func (m *MockClient) GetTokenList(context.Context, nodeapi.BlockIdentifier) ([]string, error) {
	panic("not mocked")
}
func (m *MockClient) GetTokenInfo(context.Context, string, nodeapi.BlockIdentifier) (nodeapi.TokenInfo, error) {
	panic("not mocked")
}
