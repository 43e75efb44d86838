package graph

// 金额以 gwei 为单位的十进制字符串传输，时间为 RFC3339
const schemaString = `
type Candidate {
  id: Int!
  address: String!
  name: String!
  voteCount: Int!
}

type RoundStatus {
  id: ID!
  openedAt: String!
  closedAt: String
  closableAt: String!
  lockSeconds: Int!
  totalVotes: Int!
  closed: Boolean!
}

type Transfer {
  from: String!
  to: String!
  amount: String!
}

type Settlement {
  roundId: ID!
  closedAt: String!
  pot: String!
  commission: String!
  prize: String!
  share: String!
  remainder: String!
  winners: [Candidate!]!
  transfers: [Transfer!]!
}

type Round {
  status: RoundStatus!
  pot: String!
  candidates: [Candidate!]!
  settlement: Settlement
}

type LedgerSummary {
  balance: String!
  commissionOwed: String!
  roundCount: Int!
}

type LedgerEvent {
  eventId: ID!
  type: String!
  seq: String!
  roundId: ID
  candidateId: Int
  caller: String!
  amount: String!
  occurredAt: String!
}

type Query {
  # 合约余额、应付佣金和轮次数
  ledgerSummary: LedgerSummary!

  # 所有轮次状态
  roundStatuses: [RoundStatus!]!

  round(id: ID!): Round!
  candidates(roundId: ID!): [Candidate!]!

  # 已关闭轮次的获胜者
  winners(roundId: ID!): [Candidate!]!

  # 仅所有者可调用
  participation(roundId: ID!, address: String!): Boolean!

  roundHistory(roundId: ID!): [LedgerEvent!]!
  fee: String!
  owner: String!
}

type Mutation {
  # 仅所有者可调用，lockSelector 为 1 时轮次可立即关闭
  openRound(addresses: [String!]!, names: [String!]!, lockSelector: Int!): ID!

  # value 必须等于投票费用
  castVote(roundId: ID!, candidateId: Int!, value: String!): Boolean!

  closeRound(roundId: ID!): Settlement!

  # 仅所有者可调用
  withdrawCommission: Transfer!
}

schema {
  query: Query
  mutation: Mutation
}
`
